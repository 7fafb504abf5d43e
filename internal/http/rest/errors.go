package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/italolelis/media_toolbox/internal/downloader"
	"github.com/italolelis/media_toolbox/internal/imaging"
	"github.com/italolelis/media_toolbox/internal/logctx"
	"github.com/italolelis/media_toolbox/internal/retry"
)

const (
	messageTooLarge = "Upload exceeds the maximum allowed size."
	messageInternal = "Internal server error."
)

// errorResponse is the body of every error, as read by the bundled frontend.
type errorResponse struct {
	Detail string `json:"detail"`
}

// formatError maps internal errors to a status and a fixed client message. Raw extractor
// output never reaches the client.
func formatError(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge, messageTooLarge
	}

	var failure *retry.Failure
	if errors.As(err, &failure) {
		return failure.Category.HTTPStatus(), failure.Category.Message()
	}

	var missing *downloader.OutputMissingError
	if errors.As(err, &missing) {
		return http.StatusInternalServerError, missing.Message()
	}

	var unsupported *imaging.UnsupportedMediaError
	if errors.As(err, &unsupported) {
		return http.StatusBadRequest, unsupported.Reason
	}

	return http.StatusInternalServerError, messageInternal
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status, detail := formatError(err)

	logctx.LoggerFromContext(ctx).Debug("request failed", "status", status, "err", err)

	writeDetail(ctx, w, status, detail)
}

func writeDetail(ctx context.Context, w http.ResponseWriter, status int, detail string) {
	writeJSON(ctx, w, status, errorResponse{Detail: detail})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).Error("failed to encode response", "err", err)
	}
}
