package handler

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vedanschi/pebble-outreach/internal/service"
)

// 1x1 transparent PNG.
const pixelBase64 = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

var pixelBytes, _ = base64.StdEncoding.DecodeString(pixelBase64)

// TrackingHandler serves the open-tracking pixel. The image is always
// returned, whatever the lookup outcome, so email clients never render a
// broken image.
type TrackingHandler struct {
	Dispatch *service.DispatchService
	Logger   *zap.Logger
}

func (h *TrackingHandler) ServeOpenPixel(w http.ResponseWriter, r *http.Request) {
	pixelID := chi.URLParam(r, "pixelID")

	if err := h.Dispatch.RecordOpen(r.Context(), pixelID, clientIP(r)); err != nil {
		h.Logger.Error("recording open failed", zap.String("pixel_id", pixelID), zap.Error(err))
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelBytes)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
