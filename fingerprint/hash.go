package fingerprint

import (
	"encoding/hex"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// DefaultHashBits is the per-axis resolution of the perceptual hash.
// The hash carries HashBits squared bits in total.
const DefaultHashBits = 8

// Art region bounds as fractions of the rectified card face, tuned to
// the printed card layout.
const (
	ArtLeft   = 0.06
	ArtRight  = 0.94
	ArtTop    = 0.14
	ArtBottom = 0.58
)

// CropArt extracts the art region from a rectified card image. The
// returned Mat owns its data and must be closed by the caller.
func CropArt(card gocv.Mat) (gocv.Mat, error) {
	if card.Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot crop art region of empty image")
	}

	w, h := card.Cols(), card.Rows()
	rect := image.Rect(
		int(float64(w)*ArtLeft),
		int(float64(h)*ArtTop),
		int(float64(w)*ArtRight),
		int(float64(h)*ArtBottom),
	)

	region := card.Region(rect)
	defer region.Close()

	// Region shares the parent's data; clone so the crop outlives it.
	return region.Clone(), nil
}

// HashMat computes an n-by-n mean hash over the given image: downsample
// to an n*n grid and emit one bit per cell, set when the cell is at or
// above the grid's mean intensity. The result is serialized as a
// fixed-width hex string. Identical pixels always produce an identical
// string.
func HashMat(img gocv.Mat, n int) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("cannot hash empty image")
	}
	if n < 2 {
		return "", fmt.Errorf("hash resolution must be at least 2, got %d", n)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(img, &resized, image.Point{X: n, Y: n}, 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	if resized.Channels() > 1 {
		gocv.CvtColor(resized, &gray, gocv.ColorBGRToGray)
	} else {
		resized.CopyTo(&gray)
	}

	// Mean intensity over the grid.
	var sum float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += float64(gray.GetUCharAt(i, j))
		}
	}
	threshold := sum / float64(n*n)

	// One bit per cell, row major, most significant bit first.
	raw := make([]byte, (n*n+7)/8)
	bit := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if float64(gray.GetUCharAt(i, j)) >= threshold {
				raw[bit/8] |= 1 << (7 - uint(bit%8))
			}
			bit++
		}
	}

	return hex.EncodeToString(raw), nil
}

// ArtHash crops the art region of a rectified card and hashes it.
func ArtHash(card gocv.Mat, n int) (string, error) {
	art, err := CropArt(card)
	if err != nil {
		return "", err
	}
	defer art.Close()

	return HashMat(art, n)
}

// HexWidth returns the serialized hash width in hex characters for a
// per-axis resolution of n.
func HexWidth(n int) int {
	return ((n*n + 7) / 8) * 2
}
