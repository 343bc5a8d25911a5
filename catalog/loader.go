package catalog

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"gocv.io/x/gocv"

	"github.com/DSJTechnology/riftbound-snap-export-sub001/logging"
)

// ImageLoader loads a reference card image into a grayscale Mat.
type ImageLoader interface {
	CanLoad(path string) bool
	LoadImage(path string) (gocv.Mat, error)
}

// DefaultImageLoader handles the common formats gocv reads directly.
type DefaultImageLoader struct{}

func (l *DefaultImageLoader) CanLoad(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".tiff" || ext == ".tif" || ext == ".webp" {
		_, err := os.Stat(path)
		return err == nil
	}
	return false
}

func (l *DefaultImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadGrayScale)
	if img.Empty() {
		return img, fmt.Errorf("failed to load image with default loader: %s", path)
	}
	return img, nil
}

// RawImageLoader handles RAW camera files by extracting the embedded
// JPEG preview with exiftool. Reference scans occasionally arrive as
// straight-from-camera RAW captures.
type RawImageLoader struct {
	TempDir string
}

// NewRawImageLoader creates a RAW loader with a temp directory for
// extracted previews.
func NewRawImageLoader() *RawImageLoader {
	return &RawImageLoader{TempDir: os.TempDir()}
}

var rawFormats = []string{".dng", ".raf", ".arw", ".nef", ".cr2", ".cr3", ".nrw", ".srf"}

func (l *RawImageLoader) CanLoad(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range rawFormats {
		if ext == format {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return false
}

func (l *RawImageLoader) LoadImage(path string) (gocv.Mat, error) {
	// Confirm the file carries readable metadata before shelling out
	// for the preview.
	et, err := exiftool.NewExiftool()
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to initialize exiftool: %v", err)
	}
	defer et.Close()

	fileInfos := et.ExtractMetadata(path)
	if len(fileInfos) == 0 {
		return gocv.NewMat(), fmt.Errorf("no metadata extracted from %s", path)
	}
	if fileInfos[0].Err != nil {
		return gocv.NewMat(), fmt.Errorf("metadata extraction failed for %s: %v", path, fileInfos[0].Err)
	}

	// go-exiftool does not expose binary extraction; pull the preview
	// with the exiftool binary directly, largest candidates first.
	previewTags := []string{"JpgFromRaw", "PreviewImage", "ThumbnailImage"}
	for _, tag := range previewTags {
		tempFilename := filepath.Join(l.TempDir, fmt.Sprintf("raw_preview_%d.jpg", time.Now().UnixNano()))

		outFile, err := os.Create(tempFilename)
		if err != nil {
			logging.LogWarning("Failed to create temp file for preview extraction: %v", err)
			continue
		}

		cmd := exec.Command("exiftool", "-b", "-"+tag, path)
		cmd.Stdout = outFile
		runErr := cmd.Run()
		outFile.Close()

		if runErr == nil {
			if info, err := os.Stat(tempFilename); err == nil && info.Size() > 0 {
				img := gocv.IMRead(tempFilename, gocv.IMReadGrayScale)
				os.Remove(tempFilename)
				if !img.Empty() {
					return img, nil
				}
			}
		}
		os.Remove(tempFilename)
	}

	return gocv.NewMat(), fmt.Errorf("failed to extract any preview from %s", path)
}

// LoaderRegistry manages the available reference-image loaders.
type LoaderRegistry struct {
	loaders []ImageLoader
}

// NewLoaderRegistry creates a registry with the default loaders.
func NewLoaderRegistry() *LoaderRegistry {
	return &LoaderRegistry{
		loaders: []ImageLoader{
			&DefaultImageLoader{},
			NewRawImageLoader(),
		},
	}
}

// RegisterLoader adds a custom loader to the registry.
func (r *LoaderRegistry) RegisterLoader(loader ImageLoader) {
	r.loaders = append(r.loaders, loader)
}

// CanLoadFile checks if any registered loader handles the given file.
func (r *LoaderRegistry) CanLoadFile(path string) bool {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return true
		}
	}
	return false
}

// LoadImage loads an image through the first loader that accepts it.
func (r *LoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return loader.LoadImage(path)
		}
	}
	return gocv.NewMat(), fmt.Errorf("no suitable loader found for image: %s", path)
}
