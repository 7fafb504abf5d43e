package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	// Decoders accepted on upload.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/telemetry"
)

// Fixed messages returned to clients.
const (
	MessageNotAnImage = "Invalid image file."
	MessageUnreadable = "Could not read image."
)

// UnsupportedMediaError rejects an upload before or while decoding it.
type UnsupportedMediaError struct {
	ContentType string
	Reason      string
	Err         error
}

func (e *UnsupportedMediaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unsupported upload (%s): %s: %v", e.ContentType, e.Reason, e.Err)
	}

	return fmt.Sprintf("unsupported upload (%s): %s", e.ContentType, e.Reason)
}

func (e *UnsupportedMediaError) Unwrap() error {
	return e.Err
}

// DefaultMaxPixels caps the decoded canvas of an upload, roughly 179 megapixels.
const DefaultMaxPixels = 178956970

// Service validates uploads, runs a Remover and encodes the result as PNG.
type Service struct {
	remover   Remover
	backend   string
	telemetry *telemetry.Telemetry
	maxPixels int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxPixels rejects images whose width*height exceeds n. A non-positive n keeps the default.
func WithMaxPixels(n int64) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxPixels = n
		}
	}
}

// NewService creates a Service. backend only labels metrics and logs.
func NewService(remover Remover, backend string, tel *telemetry.Telemetry, opts ...ServiceOption) *Service {
	s := &Service{remover: remover, backend: backend, telemetry: tel, maxPixels: DefaultMaxPixels}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsImageContentType reports whether a declared content type is an image type.
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// RemoveBackground reads an image declared as contentType from r and writes the PNG result
// to w. Non-image, undecodable and oversized uploads fail with *UnsupportedMediaError before
// the remover runs. The dimensions are read from the header before any pixel is decoded.
func (s *Service) RemoveBackground(ctx context.Context, contentType string, r io.Reader, w io.Writer) error {
	logger := logctx.LoggerFromContext(ctx)

	if !IsImageContentType(contentType) {
		return &UnsupportedMediaError{ContentType: contentType, Reason: MessageNotAnImage}
	}

	upload, err := asReadSeeker(r)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	cfg, _, err := image.DecodeConfig(upload)
	if err != nil {
		return &UnsupportedMediaError{ContentType: contentType, Reason: MessageUnreadable, Err: err}
	}

	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > s.maxPixels {
		return &UnsupportedMediaError{
			ContentType: contentType,
			Reason:      MessageUnreadable,
			Err:         fmt.Errorf("image of %dx%d exceeds %d pixels", cfg.Width, cfg.Height, s.maxPixels),
		}
	}

	if _, err := upload.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind upload: %w", err)
	}

	img, format, err := image.Decode(upload)
	if err != nil {
		return &UnsupportedMediaError{ContentType: contentType, Reason: MessageUnreadable, Err: err}
	}

	logger.Debug("decoded upload", "format", format, "width", img.Bounds().Dx(), "height", img.Bounds().Dy())

	var result image.Image

	err = s.telemetry.InstrumentBackgroundRemoval(ctx, s.backend, func(ctx context.Context) error {
		var err error

		result, err = s.remover.RemoveBackground(ctx, img)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove background: %w", err)
	}

	if err := png.Encode(w, result); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}

	return nil
}

// asReadSeeker returns r itself when it can seek, otherwise its buffered contents.
func asReadSeeker(r io.Reader) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(data), nil
}
