package mediaurl

import (
	"encoding/base64"
	"errors"
	"strings"
)

const dataScheme = "data:"

var ErrInvalidDataURL = errors.New("invalid data url")

func IsData(raw string) bool {
	return len(raw) >= len(dataScheme) && strings.EqualFold(raw[:len(dataScheme)], dataScheme)
}

// EncodeData returns a base64 data locator for data.
func EncodeData(mimeType string, data []byte) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len(dataScheme) + len(mimeType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataScheme)
	b.WriteString(mimeType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// DataMimeType returns the media type declared by a data locator without
// decoding its payload.
func DataMimeType(raw string) (string, bool) {
	if !IsData(raw) {
		return "", false
	}
	header, _, found := strings.Cut(raw[len(dataScheme):], ",")
	if !found {
		return "", false
	}
	mimeType, _, _ := strings.Cut(header, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	return mimeType, true
}

// ParseData decodes a data locator. Only base64 payloads are accepted.
func ParseData(raw string) (string, []byte, error) {
	if !IsData(raw) {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, found := strings.Cut(raw[len(dataScheme):], ",")
	if !found {
		return "", nil, ErrInvalidDataURL
	}

	params := strings.Split(header, ";")
	if params[len(params)-1] != "base64" {
		return "", nil, ErrInvalidDataURL
	}

	mimeType, _ := DataMimeType(raw)
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURL
	}
	return mimeType, data, nil
}
