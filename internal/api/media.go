package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"assistant/internal/storage"
)

// PublicObjects opens objects of public buckets.
type PublicObjects interface {
	OpenPublic(ctx context.Context, bucket, name string) (*storage.Object, *os.File, error)
}

type MediaHandler struct {
	objects PublicObjects
}

func NewMediaHandler(objects PublicObjects) *MediaHandler {
	return &MediaHandler{objects: objects}
}

// GET /storage/v1/object/public/{bucket}/*
func (h *MediaHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	bucket := strings.TrimSpace(chi.URLParam(r, "bucket"))
	name := strings.TrimSpace(chi.URLParam(r, "*"))
	if bucket == "" || name == "" {
		notFound(w, "Object not found")
		return
	}

	obj, file, err := h.objects.OpenPublic(r.Context(), bucket, name)
	if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, storage.ErrInvalidName) || errors.Is(err, storage.ErrInvalidBucket) {
		notFound(w, "Object not found")
		return
	}
	if err != nil {
		slog.Error("error opening object", "component", "api", "bucket", bucket, "name", name, "error", err)
		internalError(w)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", cacheControlHeader(obj.CacheControl))
	w.Header().Set("ETag", fmt.Sprintf("\"%x\"", obj.UpdatedAt.UnixNano()))
	w.Header().Set("Content-Type", obj.MimeType)

	fileName := sanitizeDispositionFilename(path.Base(obj.Name))
	if !shouldForceDownload(r) && shouldRenderInline(obj.MimeType) {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", fileName))
	} else {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", fileName))
	}

	http.ServeContent(w, r, obj.Name, obj.UpdatedAt, file)
}

// cacheControlHeader accepts either a max-age in seconds or a full header value.
func cacheControlHeader(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "no-cache"
	}
	if _, err := strconv.Atoi(value); err == nil {
		return "public, max-age=" + value
	}
	return value
}

func sanitizeDispositionFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "download"
	}
	name = strings.ReplaceAll(name, "\\", "")
	name = strings.ReplaceAll(name, "\"", "")
	name = strings.ReplaceAll(name, "\r", "")
	name = strings.ReplaceAll(name, "\n", "")
	if name == "" {
		return "download"
	}
	return name
}

func shouldRenderInline(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	if strings.HasPrefix(mimeType, "video/") {
		return true
	}
	if strings.HasPrefix(mimeType, "audio/") {
		return true
	}
	if mimeType == "application/pdf" {
		return true
	}

	return false
}

func shouldForceDownload(r *http.Request) bool {
	download := strings.TrimSpace(r.URL.Query().Get("download"))
	if download == "" {
		return false
	}

	force, err := strconv.ParseBool(download)
	if err != nil {
		return false
	}

	return force
}
