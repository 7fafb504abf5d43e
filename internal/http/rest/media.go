package rest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/media_toolbox/internal/downloader"
	"github.com/italolelis/media_toolbox/internal/imaging"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/progress"
	"github.com/italolelis/media_toolbox/internal/telemetry"
)

const livenessMessage = "YouTube to MP3 API is running."

// AudioDownloader converts a source URL into an audio file.
type AudioDownloader interface {
	Download(ctx context.Context, sourceURL, downloadID string) (*downloader.Output, error)
}

// BackgroundRemover turns an uploaded image into a PNG with a transparent background.
type BackgroundRemover interface {
	RemoveBackground(ctx context.Context, contentType string, r io.Reader, w io.Writer) error
}

// MediaHandlerConfig holds the handler's tunables.
type MediaHandlerConfig struct {
	Stream        progress.StreamOptions
	MaxUploadSize int64
	StaticDir     string
}

type MediaHandler struct {
	downloads AudioDownloader
	store     *progress.Store
	images    BackgroundRemover
	cfg       MediaHandlerConfig
	telemetry *telemetry.Telemetry
}

// NewMediaHandler creates the handler serving downloads, progress streams and background removal.
func NewMediaHandler(downloads AudioDownloader, store *progress.Store, images BackgroundRemover, cfg MediaHandlerConfig, t *telemetry.Telemetry) *MediaHandler {
	return &MediaHandler{
		downloads: downloads,
		store:     store,
		images:    images,
		cfg:       cfg,
		telemetry: t,
	}
}

func (h *MediaHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.HandleIndex)
	r.Get("/healthz", h.HandleHealth)
	r.Get("/download", h.HandleDownload)
	r.Get("/progress", h.HandleProgress)
	r.Post("/removebg", h.HandleRemoveBackground)

	if h.cfg.StaticDir != "" {
		if info, err := os.Stat(h.cfg.StaticDir); err == nil && info.IsDir() {
			r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(h.cfg.StaticDir))))
		}
	}

	return r
}

// HandleIndex serves the bundled frontend, or a liveness message when none is installed.
func (h *MediaHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	if h.cfg.StaticDir != "" {
		index := filepath.Join(h.cfg.StaticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)

			return
		}
	}

	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"message": livenessMessage})
}

func (h *MediaHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDownload runs a download to completion and streams the audio file back.
func (h *MediaHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	sourceURL := r.URL.Query().Get("url")
	downloadID := r.URL.Query().Get("download_id")

	if sourceURL == "" || downloadID == "" {
		writeDetail(ctx, w, http.StatusBadRequest, "Missing url or download_id.")

		return
	}

	// Extraction and the file transfer can outlast the server write timeout.
	liftWriteDeadline(ctx, w)

	out, err := h.downloads.Download(ctx, sourceURL, downloadID)
	if err != nil {
		writeError(ctx, w, err)

		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", downloader.ContentDisposition(out.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(out.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := downloader.Send(ctx, w, out); err != nil {
		logger.Warn("failed to send audio file", "download_id", downloadID, "err", err)
	}
}

// HandleProgress streams the progress of a download as server-sent events until it ends.
func (h *MediaHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	downloadID := r.URL.Query().Get("download_id")
	if downloadID == "" {
		writeDetail(ctx, w, http.StatusBadRequest, "Missing download_id.")

		return
	}

	liftWriteDeadline(ctx, w)

	events := newEventWriter(w)
	if err := events.Open(); err != nil {
		logger.Error("failed to open event stream", "err", err)

		return
	}

	h.telemetry.IncrementActiveStreams(ctx)
	defer h.telemetry.DecrementActiveStreams(ctx)

	err := progress.Stream(ctx, h.store, downloadID, h.cfg.Stream, func(s progress.State) error {
		return events.Send(s)
	})

	switch {
	case err == nil:
		logger.Debug("progress stream completed", "download_id", downloadID)
	case errors.Is(err, progress.ErrWaitTimeout):
		logger.Warn("progress stream gave up waiting for download", "download_id", downloadID)
	case errors.Is(err, context.Canceled):
		logger.Debug("progress stream closed by client", "download_id", downloadID)
	default:
		logger.Warn("progress stream ended", "download_id", downloadID, "err", err)
	}
}

// HandleRemoveBackground accepts a multipart upload under any field name and returns the PNG.
func (h *MediaHandler) HandleRemoveBackground(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		writeDetail(ctx, w, http.StatusBadRequest, imaging.MessageNotAnImage)

		return
	}

	part, err := firstFilePart(mr)
	if err != nil {
		writeError(ctx, w, err)

		return
	}
	defer part.Close()

	upload, err := io.ReadAll(part)
	if err != nil {
		writeError(ctx, w, err)

		return
	}

	start := time.Now()

	var png bytes.Buffer
	if err := h.images.RemoveBackground(ctx, part.Header.Get("Content-Type"), bytes.NewReader(upload), &png); err != nil {
		writeError(ctx, w, err)

		return
	}

	logctx.LoggerFromContext(ctx).Debug("background removed",
		"file_name", part.FileName(),
		"upload_size", humanize.Bytes(uint64(len(upload))),
		"elapsed", time.Since(start).String(),
	)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(png.Len()))
	w.WriteHeader(http.StatusOK)

	_, _ = png.WriteTo(w)
}

// firstFilePart returns the first part carrying a file, whatever its form field name.
func firstFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, &imaging.UnsupportedMediaError{Reason: imaging.MessageNotAnImage}
		}

		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}

			return nil, &imaging.UnsupportedMediaError{Reason: imaging.MessageNotAnImage, Err: err}
		}

		if part.FileName() != "" {
			return part, nil
		}

		part.Close()
	}
}

// liftWriteDeadline removes the server-wide write timeout for a long-lived response.
func liftWriteDeadline(ctx context.Context, w http.ResponseWriter) {
	err := http.NewResponseController(w).SetWriteDeadline(time.Time{})
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		logctx.LoggerFromContext(ctx).Warn("failed to lift write deadline", "err", err)
	}
}
