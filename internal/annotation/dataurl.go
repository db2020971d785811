package annotation

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	// Registered decoder for source images.
	_ "image/gif"
)

// Limits applied to decoded source images, checked against the header
// before any pixels are allocated.
const (
	MaxSourceSide   = 8192
	MaxSourcePixels = 40_000_000
)

// MaxCompositeDataURL bounds an encoded composite. The tutor's request body
// limit must stay above it.
const MaxCompositeDataURL = 6 << 20

// ErrImageTooLarge is returned for images over the size limits.
var ErrImageTooLarge = errors.New("image too large")

var errInvalidDataURL = errors.New("invalid data url")

var jpegQualities = []int{85, 70, 50}

// EncodePNGDataURL encodes img as a base64 PNG data URL.
func EncodePNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func encodeJPEGDataURL(img image.Image, quality int) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// EncodeCompositeDataURL encodes img as PNG when that fits in
// MaxCompositeDataURL. Otherwise it falls back to JPEG at decreasing
// quality, halving the image until the result fits.
func EncodeCompositeDataURL(img image.Image) (string, error) {
	url, err := EncodePNGDataURL(img)
	if err != nil || len(url) <= MaxCompositeDataURL {
		return url, err
	}
	for {
		for _, q := range jpegQualities {
			if url, err = encodeJPEGDataURL(img, q); err != nil || len(url) <= MaxCompositeDataURL {
				return url, err
			}
		}
		b := img.Bounds()
		if b.Dx() <= 1 && b.Dy() <= 1 {
			return "", fmt.Errorf("%w: composite exceeds %d bytes", ErrImageTooLarge, MaxCompositeDataURL)
		}
		img = scaleTo(img, max(b.Dx()/2, 1), max(b.Dy()/2, 1))
	}
}

// DecodeDataURL splits a base64 data URL into its MIME type and payload.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, errInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errInvalidDataURL
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: only base64 payloads are supported", errInvalidDataURL)
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url payload: %w", err)
	}
	return mime, data, nil
}

// DecodeImageDataURL decodes a data URL into an image. Images whose header
// declares more than MaxSourceSide per side or MaxSourcePixels in total are
// rejected with ErrImageTooLarge.
func DecodeImageDataURL(dataURL string) (image.Image, error) {
	_, data, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}
	if err := checkSourceSize(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func checkSourceSize(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("decode image: empty %dx%d image", w, h)
	}
	if w > MaxSourceSide || h > MaxSourceSide || w*h > MaxSourcePixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, w, h)
	}
	return nil
}
