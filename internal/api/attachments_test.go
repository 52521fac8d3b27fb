package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"assistant/internal/attachments"
)

type uploadPart struct {
	name     string
	mimeType string
	data     []byte
}

func multipartBody(t *testing.T, field string, parts ...uploadPart) (*bytes.Buffer, string) {
	t.Helper()

	body := bytes.NewBuffer(nil)
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+p.name+`"`)
		header.Set("Content-Type", p.mimeType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart() error = %v", err)
		}
		if _, err := part.Write(p.data); err != nil {
			t.Fatalf("part.Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer.Close() error = %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestReadMultipartFilesReturnsJSON413OnOversizeBody(t *testing.T) {
	body, contentType := multipartBody(t, "files", uploadPart{name: "large.bin", mimeType: "application/octet-stream", data: bytes.Repeat([]byte{'a'}, 2048)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/attachments", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	files, cleanup, ok := readMultipartFiles(rr, req, 1024)
	cleanup()
	if ok {
		t.Fatalf("readMultipartFiles() ok = true, want false")
	}
	if files != nil {
		t.Fatalf("readMultipartFiles() files = %#v, want nil", files)
	}

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusRequestEntityTooLarge)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v, body=%q", err, rr.Body.String())
	}
	if resp.Error.Code != ErrCodePayloadTooLarge {
		t.Fatalf("error.code = %q, want %q", resp.Error.Code, ErrCodePayloadTooLarge)
	}
}

func TestReadMultipartFilesRequiresFilesField(t *testing.T) {
	body, contentType := multipartBody(t, "file", uploadPart{name: "a.txt", mimeType: "text/plain", data: []byte("a")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/x/attachments", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	if _, cleanup, ok := readMultipartFiles(rr, req, 1<<20); ok {
		cleanup()
		t.Fatal("readMultipartFiles() ok = true, want false")
	}
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUploadAttachmentsStagesAndRejects(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "ok"})
	session := env.manager.Create()

	body, contentType := multipartBody(t, "files",
		uploadPart{name: "notes.txt", mimeType: "text/plain", data: []byte("some notes")},
		uploadPart{name: "huge.txt", mimeType: "text/plain", data: bytes.Repeat([]byte{'x'}, 4096)},
		uploadPart{name: "tool.exe", mimeType: "application/x-msdownload", data: []byte("MZ")},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+session.ID+"/attachments", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	env.server.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody[AttachmentUploadResponse](t, rr)

	if len(resp.Staged) != 1 || resp.Staged[0].Name != "notes.txt" {
		t.Fatalf("staged = %+v, want notes.txt only", resp.Staged)
	}
	if !strings.HasPrefix(resp.Staged[0].Locator, "http://files.test/storage/v1/object/public/media-uploads/") {
		t.Fatalf("locator = %q, want public object URL", resp.Staged[0].Locator)
	}
	if len(resp.Rejected) != 2 {
		t.Fatalf("rejected = %+v, want 2 entries", resp.Rejected)
	}
	reasons := map[string]string{}
	for _, r := range resp.Rejected {
		reasons[r.Name] = r.Reason
	}
	if reasons["huge.txt"] != attachments.ReasonTooLarge || reasons["tool.exe"] != attachments.ReasonUnsupported {
		t.Fatalf("rejection reasons = %v", reasons)
	}

	var sawTooLarge bool
	for _, n := range resp.Notices {
		if n.Title == "File too large" && strings.Contains(n.Description, "huge.txt") {
			sawTooLarge = true
		}
	}
	if !sawTooLarge {
		t.Fatalf("notices = %+v, want a File too large notice for huge.txt", resp.Notices)
	}
	if len(resp.Attachments) != 1 {
		t.Fatalf("attachments = %+v, want 1 staged", resp.Attachments)
	}
}

func TestRemoveAndClearAttachments(t *testing.T) {
	env := newTestEnv(t, &stubCompleter{reply: "ok"})
	session := env.manager.Create()
	session.Attachments.Select(t.Context(), []attachments.FileInput{
		attachments.FromBytes("a.txt", "text/plain", []byte("a")),
		attachments.FromBytes("b.txt", "text/plain", []byte("b")),
	}).Wait()

	base := "/api/v1/sessions/" + session.ID + "/attachments"
	if rr := env.do(t, http.MethodDelete, base+"/5", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("remove out of range status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	if rr := env.do(t, http.MethodDelete, base+"/0", nil); rr.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	list := decodeBody[AttachmentListResponse](t, env.do(t, http.MethodGet, base, nil))
	if len(list.Attachments) != 1 || list.Attachments[0].Name != "b.txt" {
		t.Fatalf("attachments = %+v, want b.txt", list.Attachments)
	}

	if rr := env.do(t, http.MethodDelete, base, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got := session.Attachments.Staged(); len(got) != 0 {
		t.Fatalf("Staged() = %+v, want empty", got)
	}
}
