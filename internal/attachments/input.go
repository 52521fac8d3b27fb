package attachments

import (
	"bytes"
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// FileInput is a raw file offered for staging. Open may be called more than
// once; every returned reader is closed by the store.
type FileInput struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

func FromMultipart(fh *multipart.FileHeader) FileInput {
	return FileInput{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func FromBytes(name, mimeType string, data []byte) FileInput {
	return FileInput{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// declaredMimeType falls back to the filename extension when the client did
// not declare a usable type.
func (f FileInput) declaredMimeType() string {
	mimeType := strings.TrimSpace(f.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); byExt != "" {
			mimeType = byExt
		}
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if parsed, _, err := mime.ParseMediaType(mimeType); err == nil {
		return parsed
	}
	return strings.ToLower(mimeType)
}
