package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// DecodeFrame decodes a PNG, JPEG or WebP image into a frame, scaling it
// down to maxWidth when it is wider. maxWidth <= 0 keeps the source size.
func DecodeFrame(data []byte, maxWidth int) (*Frame, error) {
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if decoded, webpErr := webp.Decode(bytes.NewReader(data)); webpErr == nil {
			img = decoded
		} else {
			return nil, fmt.Errorf("unable to decode frame: %w", err)
		}
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("invalid image dimensions")
	}

	var rgba *image.RGBA
	if maxWidth > 0 && b.Dx() > maxWidth {
		height := b.Dy() * maxWidth / b.Dx()
		if height < 1 {
			height = 1
		}
		rgba = image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		xdraw.ApproxBiLinear.Scale(rgba, rgba.Bounds(), img, b, stddraw.Src, nil)
	} else {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		stddraw.Draw(rgba, rgba.Bounds(), img, b.Min, stddraw.Src)
	}
	return &Frame{Pix: rgba.Pix, Width: rgba.Rect.Dx(), Height: rgba.Rect.Dy()}, nil
}

// Image wraps the frame buffer as an image without copying.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{Pix: f.Pix, Stride: f.Width * 4, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// DataURI encodes the frame as a PNG data URI.
func (f *Frame) DataURI() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image()); err != nil {
		return "", fmt.Errorf("failed to encode frame: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ParseDataURI returns the decoded payload of a base64 image data URI.
func ParseDataURI(value string) ([]byte, string, error) {
	raw := strings.TrimSpace(value)
	if !strings.HasPrefix(raw, "data:") {
		return nil, "", errors.New("invalid data url prefix")
	}
	comma := strings.Index(raw, ",")
	if comma <= 5 {
		return nil, "", errors.New("invalid data url payload")
	}
	meta := raw[5:comma]
	if !strings.HasSuffix(strings.ToLower(meta), ";base64") {
		return nil, "", errors.New("data url must be base64")
	}
	mime := strings.TrimSpace(meta[:len(meta)-len(";base64")])
	switch mime {
	case "image/png", "image/jpeg", "image/webp":
	default:
		return nil, "", fmt.Errorf("unsupported frame type %q", mime)
	}
	data, err := base64.StdEncoding.DecodeString(raw[comma+1:])
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, mime, nil
}
