// Package images stores profile pictures: one file per account, png or jpeg
// only, center-cropped to a square before saving.
package images

import (
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"blogapp/internal/logging"
)

// ErrInvalidUpload rejects uploads that are not png or jpeg.
var ErrInvalidUpload = errors.New("images: unsupported image type")

var extensions = []string{"png", "jpeg"}

type Store struct {
	dir string
	log logging.Logger
}

func NewStore(dir string, log logging.Logger) *Store {
	return &Store{dir: dir, log: log.With("component", "images")}
}

func (s *Store) Init() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	return nil
}

// Save decodes, crops, and stores the profile image for an account,
// replacing any previous image regardless of its format.
func (s *Store) Save(uniqueID string, r io.Reader) (string, error) {
	// Only png and jpeg decoders are registered, so anything else fails
	// to decode here.
	img, format, err := image.Decode(r)
	if err != nil {
		return "", ErrInvalidUpload
	}
	if format != "png" && format != "jpeg" {
		return "", ErrInvalidUpload
	}

	cropped := squareCrop(img)

	for _, ext := range extensions {
		old := filepath.Join(s.dir, uniqueID+"."+ext)
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("replace profile image: %w", err)
		}
	}

	path := filepath.Join(s.dir, uniqueID+"."+format)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("save profile image: %w", err)
	}
	defer f.Close()

	switch format {
	case "png":
		err = png.Encode(f, cropped)
	case "jpeg":
		err = jpeg.Encode(f, cropped, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode profile image: %w", err)
	}

	s.log.Debug("profile image saved", "account", uniqueID, "format", format)
	return filepath.Base(path), nil
}

// Path returns the stored image file name for the account, if one exists.
func (s *Store) Path(uniqueID string) (string, bool) {
	for _, ext := range extensions {
		name := uniqueID + "." + ext
		if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			return name, true
		}
	}
	return "", false
}

type subImager interface {
	SubImage(image.Rectangle) image.Image
}

// squareCrop trims the longer dimension symmetrically so the result is
// centered and square.
func squareCrop(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return img
	}

	side := w
	if h < side {
		side = h
	}
	x0 := b.Min.X + (w-side)/2
	y0 := b.Min.Y + (h-side)/2
	rect := image.Rect(x0, y0, x0+side, y0+side)

	if si, ok := img.(subImager); ok {
		return si.SubImage(rect)
	}
	return img
}
