package api

import (
	"log/slog"
	"net/http"

	"assistant/internal/attachments"
	"assistant/internal/storage"
)

type BucketHandler struct {
	buckets attachments.BucketEnsurer
	spec    storage.BucketSpec
}

func NewBucketHandler(buckets attachments.BucketEnsurer, spec storage.BucketSpec) *BucketHandler {
	return &BucketHandler{buckets: buckets, spec: spec}
}

type EnsureBucketResponse struct {
	Name    string `json:"name"`
	Public  bool   `json:"public"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

// POST /api/v1/storage/buckets/ensure
func (h *BucketHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	created, err := h.buckets.EnsureBucket(r.Context(), h.spec)
	if err != nil {
		slog.Error("error ensuring bucket", "component", "api", "bucket", h.spec.Name, "error", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeBucketUnavailable, "Storage bucket could not be provisioned")
		return
	}

	message := "Bucket already exists"
	if created {
		message = "Bucket created successfully"
	}

	writeJSON(w, http.StatusOK, EnsureBucketResponse{
		Name:    h.spec.Name,
		Public:  h.spec.Public,
		Created: created,
		Message: message,
	})
}
