// Package imaging validates uploaded photos and normalizes oversized ones.
// Validation is pure: every call works on its own buffers, so any number of
// uploads can be validated concurrently
package imaging

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"

	// register decoders for the formats on the allow-list
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultAllowedTypes is the raster allow-list for civic report photos
var DefaultAllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// Config bounds what Validate accepts and how it re-encodes
type Config struct {
	MaxBytes     int64    // upload size cap, default 20 MiB
	AllowedTypes []string // MIME allow-list, default DefaultAllowedTypes
	MaxDim       int      // longest edge after normalization, default 1024
	JPEGQuality  int      // re-encode quality, default 85
}

func (c Config) withDefaults() Config {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 20 << 20
	}
	if len(c.AllowedTypes) == 0 {
		c.AllowedTypes = DefaultAllowedTypes
	}
	if c.MaxDim <= 0 {
		c.MaxDim = 1024
	}
	if c.JPEGQuality <= 0 {
		c.JPEGQuality = 85
	}
	return c
}

// Normalized is the outcome of a successful validation. Bytes is a fresh
// buffer when the image was downscaled, or the caller's original bytes when
// it already fit
type Normalized struct {
	Bytes   []byte
	Width   int
	Height  int
	MIME    string
	Resized bool
}

// Validator checks raw upload bytes against the config
type Validator struct {
	cfg     Config
	allowed map[string]struct{}
}

// NewValidator builds a Validator, applying defaults for zero fields
func NewValidator(cfg Config) *Validator {
	cfg = cfg.withDefaults()
	allowed := make(map[string]struct{}, len(cfg.AllowedTypes))
	for _, t := range cfg.AllowedTypes {
		allowed[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return &Validator{cfg: cfg, allowed: allowed}
}

// Validate runs the checks in order, short-circuiting on the first failure:
// size cap, content sniffing, allow-list, decode, downscale. Failures are
// *RejectError values the transport layer maps onto status codes
func (v *Validator) Validate(raw []byte, declaredType, filename string) (Normalized, error) {
	if int64(len(raw)) > v.cfg.MaxBytes {
		return Normalized{}, rejectf(TooLarge, "upload is %d bytes, cap is %d", len(raw), v.cfg.MaxBytes)
	}

	mimeType := sniff(raw, declaredType, filename)
	if mimeType == "" {
		return Normalized{}, rejectf(UnknownType, "unable to determine content type")
	}
	if _, ok := v.allowed[mimeType]; !ok {
		return Normalized{}, rejectf(UnsupportedType, "content type %s is not an allowed image format", mimeType)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Normalized{}, rejectf(CorruptImage, "image does not decode: %v", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= v.cfg.MaxDim && h <= v.cfg.MaxDim {
		return Normalized{Bytes: raw, Width: w, Height: h, MIME: mimeType}, nil
	}

	return v.downscale(img, w, h, mimeType)
}

// sniff detects the true content type from magic bytes, trusting the
// declared type and then the filename extension only when sniffing cannot
// identify the content
func sniff(raw []byte, declaredType, filename string) string {
	detected := mimetype.Detect(raw)
	mt := strings.ToLower(detected.String())
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if dt := strings.ToLower(strings.TrimSpace(declaredType)); dt != "" {
		if i := strings.Index(dt, ";"); i >= 0 {
			dt = strings.TrimSpace(dt[:i])
		}
		return dt
	}
	if ext := filepath.Ext(filename); ext != "" {
		if byExt := mime.TypeByExtension(strings.ToLower(ext)); byExt != "" {
			if i := strings.Index(byExt, ";"); i >= 0 {
				byExt = strings.TrimSpace(byExt[:i])
			}
			return strings.ToLower(byExt)
		}
	}
	return ""
}

// downscale resizes preserving aspect ratio so the longest edge equals
// MaxDim, then re-encodes. Formats without an encoder (webp, bmp, tiff)
// come back as JPEG
func (v *Validator) downscale(img image.Image, w, h int, mimeType string) (Normalized, error) {
	ratio := float64(v.cfg.MaxDim) / float64(w)
	if rh := float64(v.cfg.MaxDim) / float64(h); rh < ratio {
		ratio = rh
	}
	nw := int(float64(w) * ratio)
	nh := int(float64(h) * ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	outMIME := mimeType
	switch mimeType {
	case "image/png":
		if err := png.Encode(&buf, dst); err != nil {
			return Normalized{}, rejectf(CorruptImage, "re-encode png: %v", err)
		}
	case "image/gif":
		if err := gif.Encode(&buf, dst, nil); err != nil {
			return Normalized{}, rejectf(CorruptImage, "re-encode gif: %v", err)
		}
	default:
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: v.cfg.JPEGQuality}); err != nil {
			return Normalized{}, rejectf(CorruptImage, "re-encode jpeg: %v", err)
		}
		outMIME = "image/jpeg"
	}

	return Normalized{Bytes: buf.Bytes(), Width: nw, Height: nh, MIME: outMIME, Resized: true}, nil
}
