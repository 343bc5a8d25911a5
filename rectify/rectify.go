package rectify

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
)

// Config holds the detection parameters of the shape normalizer.
type Config struct {
	// CardWidth and CardHeight are the canonical rectified dimensions.
	CardWidth  int
	CardHeight int

	// MinAreaFrac is the minimum contour area as a fraction of the frame
	// area for a contour to be considered a card candidate.
	MinAreaFrac float64

	// ApproxEpsFrac scales the polygon approximation tolerance relative
	// to the contour perimeter.
	ApproxEpsFrac float64

	// FallbackCropFrac is the share of the shorter frame dimension the
	// fallback center crop assumes the card occupies.
	FallbackCropFrac float64

	// Edge detection parameters.
	BlurKernel         int
	CannyLow, CannyHigh float32
}

// DefaultConfig returns detection parameters tuned for a hand-held
// camera pointed at a single card.
func DefaultConfig() Config {
	return Config{
		CardWidth:        500,
		CardHeight:       700,
		MinAreaFrac:      0.10,
		ApproxEpsFrac:    0.02,
		FallbackCropFrac: 0.70,
		BlurKernel:       5,
		CannyLow:         50,
		CannyHigh:        150,
	}
}

// Rectify locates the card quadrilateral in a camera frame and warps it
// to the canonical CardWidth x CardHeight view. It never returns an
// error: when no suitable quadrilateral is found, or any detection step
// fails, it degrades to a deterministic center crop and reports
// detected=false with a guidance message. The returned Mat is owned by
// the caller.
func Rectify(frame gocv.Mat, cfg Config) (out gocv.Mat, detected bool, status string) {
	// Detection runs against native code; a panic anywhere inside must
	// degrade to the fallback crop, never reach the caller.
	defer func() {
		if r := recover(); r != nil {
			logging.LogWarning("card detection panicked: %v", r)
			out = fallbackCrop(frame, cfg)
			detected = false
			status = "detection failed, using center crop"
		}
	}()

	if frame.Empty() {
		return fallbackCrop(frame, cfg), false, "no frame available"
	}

	corners, found := detectQuad(frame, cfg)
	if !found {
		return fallbackCrop(frame, cfg), false, "no card outline found, align the card with the frame"
	}

	warped, err := warpToCard(frame, corners, cfg)
	if err != nil {
		logging.LogWarning("perspective warp failed: %v", err)
		return fallbackCrop(frame, cfg), false, "could not rectify card, using center crop"
	}

	return warped, true, "card detected"
}

// detectQuad finds the largest four-vertex contour covering at least
// MinAreaFrac of the frame. Every intermediate Mat is released before
// returning, on all paths.
func detectQuad(frame gocv.Mat, cfg Config) ([4]image.Point, bool) {
	var corners [4]image.Point

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	// Blur suppresses sensor noise before edge detection.
	blurred := gocv.NewMat()
	defer blurred.Close()
	k := cfg.BlurKernel
	if k < 3 {
		k = 3
	}
	gocv.GaussianBlur(gray, &blurred, image.Point{X: k, Y: k}, 0, 0, gocv.BorderDefault)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(blurred, &edges, cfg.CannyLow, cfg.CannyHigh)

	// Dilation closes small gaps in the card outline.
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()
	dilated := gocv.NewMat()
	defer dilated.Close()
	gocv.Dilate(edges, &dilated, kernel)

	contours := gocv.FindContours(dilated, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	minArea := cfg.MinAreaFrac * float64(frame.Cols()*frame.Rows())
	bestArea := 0.0
	found := false

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)

		area := gocv.ContourArea(contour)
		if area < minArea || area <= bestArea {
			continue
		}

		epsilon := cfg.ApproxEpsFrac * gocv.ArcLength(contour, true)
		approx := gocv.ApproxPolyDP(contour, epsilon, true)
		if approx.Size() == 4 {
			corners = OrderCorners(approx.ToPoints())
			bestArea = area
			found = true
		}
		approx.Close()
	}

	return corners, found
}

// warpToCard computes the homography from the ordered source corners to
// the canonical card rectangle and resamples the frame through it.
func warpToCard(frame gocv.Mat, corners [4]image.Point, cfg Config) (gocv.Mat, error) {
	src := gocv.NewPointVectorFromPoints(corners[:])
	defer src.Close()
	dst := gocv.NewPointVectorFromPoints([]image.Point{
		{X: 0, Y: 0},
		{X: cfg.CardWidth - 1, Y: 0},
		{X: cfg.CardWidth - 1, Y: cfg.CardHeight - 1},
		{X: 0, Y: cfg.CardHeight - 1},
	})
	defer dst.Close()

	transform := gocv.GetPerspectiveTransform(src, dst)
	defer transform.Close()
	if transform.Empty() {
		return gocv.NewMat(), fmt.Errorf("degenerate corner set %v", corners)
	}

	warped := gocv.NewMat()
	gocv.WarpPerspective(frame, &warped, transform, image.Point{X: cfg.CardWidth, Y: cfg.CardHeight})
	if warped.Empty() {
		warped.Close()
		return gocv.NewMat(), fmt.Errorf("warp produced empty image")
	}
	return warped, nil
}

// fallbackCrop assumes the card occupies FallbackCropFrac of the shorter
// frame dimension, centered, with the canonical aspect ratio. It always
// produces a CardWidth x CardHeight image.
func fallbackCrop(frame gocv.Mat, cfg Config) gocv.Mat {
	if frame.Empty() {
		return gocv.NewMatWithSize(cfg.CardHeight, cfg.CardWidth, gocv.MatTypeCV8U)
	}

	w, h := frame.Cols(), frame.Rows()
	short := w
	if h < short {
		short = h
	}

	cropW := int(float64(short) * cfg.FallbackCropFrac)
	cropH := cropW * cfg.CardHeight / cfg.CardWidth
	if cropW < 1 {
		cropW = 1
	}
	if cropH < 1 {
		cropH = 1
	}
	if cropW > w {
		cropW = w
	}
	if cropH > h {
		cropH = h
	}

	x0 := (w - cropW) / 2
	y0 := (h - cropH) / 2

	region := frame.Region(image.Rect(x0, y0, x0+cropW, y0+cropH))
	defer region.Close()

	out := gocv.NewMat()
	gocv.Resize(region, &out, image.Point{X: cfg.CardWidth, Y: cfg.CardHeight}, 0, 0, gocv.InterpolationLinear)
	return out
}
