package embedding

// HealthStatus grades one pipeline health check.
type HealthStatus int

const (
	HealthPass HealthStatus = iota
	HealthWarn
	HealthFail
)

func (s HealthStatus) String() string {
	switch s {
	case HealthPass:
		return "pass"
	case HealthWarn:
		return "warn"
	case HealthFail:
		return "fail"
	}
	return "unknown"
}

// Calibrated similarity thresholds for the three end-to-end checks.
const (
	reencodePass = 0.99
	reencodeWarn = 0.97

	sameCardPass = 0.90
	sameCardWarn = 0.80

	distinctPass = 0.75
	distinctWarn = 0.85
)

// CheckReencode grades the similarity of the same physical image
// encoded twice. Anything below near-identity means the encoder is not
// deterministic enough to trust.
func CheckReencode(sim float64) HealthStatus {
	switch {
	case sim >= reencodePass:
		return HealthPass
	case sim >= reencodeWarn:
		return HealthWarn
	default:
		return HealthFail
	}
}

// CheckSameCard grades the similarity of two different photos of the
// same catalog card.
func CheckSameCard(sim float64) HealthStatus {
	switch {
	case sim >= sameCardPass:
		return HealthPass
	case sim >= sameCardWarn:
		return HealthWarn
	default:
		return HealthFail
	}
}

// CheckDistinctCards grades the similarity of two different catalog
// cards. High similarity here means the pipeline risks false matches.
func CheckDistinctCards(sim float64) HealthStatus {
	switch {
	case sim <= distinctPass:
		return HealthPass
	case sim <= distinctWarn:
		return HealthWarn
	default:
		return HealthFail
	}
}

// HealthCheck is one graded similarity measurement.
type HealthCheck struct {
	Name       string
	Similarity float64
	Status     HealthStatus
}

// EvaluateHealth grades the three calibrated similarity measurements of
// an embedding pipeline: re-encoding the same image, two photos of the
// same card, and two distinct cards.
func EvaluateHealth(reencodeSim, sameCardSim, distinctSim float64) []HealthCheck {
	return []HealthCheck{
		{Name: "same image re-encoded", Similarity: reencodeSim, Status: CheckReencode(reencodeSim)},
		{Name: "same card, different photos", Similarity: sameCardSim, Status: CheckSameCard(sameCardSim)},
		{Name: "distinct cards", Similarity: distinctSim, Status: CheckDistinctCards(distinctSim)},
	}
}
