package api

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"assistant/internal/attachments"
	"assistant/internal/models"
)

const (
	maxFilesPerUpload       = 10
	multipartMemoryMaxBytes = 8 << 20
)

type AttachmentHandler struct {
	uploadRequestLimitBytes int64
}

func NewAttachmentHandler(uploadMaxBytes int64) *AttachmentHandler {
	return &AttachmentHandler{
		uploadRequestLimitBytes: uploadMaxBytes*maxFilesPerUpload + 1<<20,
	}
}

type AttachmentUploadResponse struct {
	attachments.BatchResult
	Attachments []models.Attachment `json:"attachments"`
}

type AttachmentListResponse struct {
	Attachments []models.Attachment `json:"attachments"`
	Uploading   bool                `json:"uploading"`
}

// POST /api/v1/sessions/{sessionID}/attachments
//
// Every file of the request is one batch; the response is written after the
// whole batch is staged or rejected.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	files, cleanup, ok := readMultipartFiles(w, r, h.uploadRequestLimitBytes)
	if !ok {
		return
	}
	defer cleanup()

	inputs := make([]attachments.FileInput, 0, len(files))
	for _, fh := range files {
		inputs = append(inputs, attachments.FromMultipart(fh))
	}

	session := GetSession(r)
	session.Touch()
	result := session.Attachments.Select(r.Context(), inputs).Wait()

	writeJSON(w, http.StatusOK, AttachmentUploadResponse{
		BatchResult: result,
		Attachments: stagedOrEmpty(session.Attachments.Staged()),
	})
}

// GET /api/v1/sessions/{sessionID}/attachments
func (h *AttachmentHandler) List(w http.ResponseWriter, r *http.Request) {
	store := GetSession(r).Attachments
	writeJSON(w, http.StatusOK, AttachmentListResponse{
		Attachments: stagedOrEmpty(store.Staged()),
		Uploading:   store.Uploading(),
	})
}

// DELETE /api/v1/sessions/{sessionID}/attachments/{index}
func (h *AttachmentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
	if err != nil {
		badRequest(w, "index must be an integer")
		return
	}

	if !GetSession(r).Attachments.Remove(index) {
		notFound(w, "No staged attachment at that index")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /api/v1/sessions/{sessionID}/attachments
func (h *AttachmentHandler) Clear(w http.ResponseWriter, r *http.Request) {
	GetSession(r).Attachments.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func stagedOrEmpty(staged []models.Attachment) []models.Attachment {
	if staged == nil {
		return []models.Attachment{}
	}
	return staged
}

func readMultipartFiles(
	w http.ResponseWriter,
	r *http.Request,
	maxBytes int64,
) ([]*multipart.FileHeader, func(), bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}

	err := r.ParseMultipartForm(multipartMemoryMaxBytes)
	if err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "Upload exceeds maximum request size")
		} else {
			badRequest(w, "Invalid multipart upload")
		}
		return nil, func() {}, false
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		cleanup()
		badRequest(w, "File field 'files' is required")
		return nil, func() {}, false
	}
	if len(files) > maxFilesPerUpload {
		cleanup()
		badRequest(w, "Too many files in one upload")
		return nil, func() {}, false
	}

	for _, fh := range files {
		if fh == nil || strings.TrimSpace(fh.Filename) == "" {
			cleanup()
			badRequest(w, "File name is required")
			return nil, func() {}, false
		}
	}

	return files, cleanup, true
}
