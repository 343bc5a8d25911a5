// Package capture adapts a gocv camera device into the orchestrator's
// frame sampler: pull a frame, rectify the card face, hash the art
// region.
package capture

import (
	"context"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/fingerprint"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/rectify"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/scan"
	"github.com/DSJTechnology/riftbound-snap-export-sub001/types"
)

// Camera owns a video capture device and the per-frame pipeline.
type Camera struct {
	mu       sync.Mutex
	vc       *gocv.VideoCapture
	cfg      rectify.Config
	hashBits int
	closed   bool
}

// Open acquires the camera device. Acquisition failure (permission
// denied, device missing) is recoverable: the caller surfaces it and
// stays idle.
func Open(device int, cfg rectify.Config, hashBits int) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera device %d: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera device %d is not available", device)
	}
	return &Camera{vc: vc, cfg: cfg, hashBits: hashBits}, nil
}

// Ready reports whether the device is open and delivering frames.
func (c *Camera) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && c.vc != nil && c.vc.IsOpened()
}

// Sample pulls the current frame and runs it through the recognition
// pipeline: rectify, crop the art region, hash. The whole step is
// synchronous and bounded; ctx is checked before the capture starts.
func (c *Camera) Sample(ctx context.Context) (types.Fingerprint, scan.SampleInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.Fingerprint{}, scan.SampleInfo{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.vc == nil {
		return types.Fingerprint{}, scan.SampleInfo{}, fmt.Errorf("camera is closed")
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := c.vc.Read(&frame); !ok || frame.Empty() {
		return types.Fingerprint{}, scan.SampleInfo{}, fmt.Errorf("failed to read camera frame")
	}

	card, detected, status := rectify.Rectify(frame, c.cfg)
	defer card.Close()

	hash, err := fingerprint.ArtHash(card, c.hashBits)
	if err != nil {
		return types.Fingerprint{}, scan.SampleInfo{Detected: detected, Status: status}, err
	}

	return types.Fingerprint{Kind: types.FingerprintHash, Hash: hash},
		scan.SampleInfo{Detected: detected, Status: status}, nil
}

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.vc != nil {
		err := c.vc.Close()
		c.vc = nil
		return err
	}
	return nil
}
