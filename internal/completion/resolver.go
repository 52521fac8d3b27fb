package completion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"assistant/internal/blob"
	"assistant/internal/mediaurl"
)

const fetchAccept = "image/*, video/*, audio/*, application/pdf, text/plain;q=0.9, */*;q=0.5"

type ObjectReader interface {
	Download(ctx context.Context, bucket, name string) ([]byte, string, error)
}

// Resolver turns attachment locators into inline bytes for the provider.
type Resolver struct {
	objects  ObjectReader
	baseURL  string
	client   *http.Client
	maxBytes int64
}

func NewResolver(objects ObjectReader, baseURL string, fetchTimeout time.Duration, maxBytes int64) *Resolver {
	return &Resolver{
		objects:  objects,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: fetchTimeout},
		maxBytes: maxBytes,
	}
}

// ResolveAll dereferences every locator in order. Locators that fail are
// logged and skipped.
func (r *Resolver) ResolveAll(ctx context.Context, locators []string) []InlineData {
	out := make([]InlineData, 0, len(locators))
	for _, locator := range locators {
		data, err := r.Resolve(ctx, locator)
		if err != nil {
			slog.Warn("skipping attachment", "component", "completion", "locator", truncateLocator(locator), "error", err)
			continue
		}
		out = append(out, *data)
	}
	return out
}

func (r *Resolver) Resolve(ctx context.Context, locator string) (*InlineData, error) {
	locator = strings.TrimSpace(locator)

	if mediaurl.IsData(locator) {
		mimeType, data, err := mediaurl.ParseData(locator)
		if err != nil {
			return nil, err
		}
		return &InlineData{MimeType: mimeType, Data: data}, nil
	}

	if r.objects != nil && mediaurl.SameOrigin(r.baseURL, locator) {
		if bucket, name, ok := mediaurl.ParseObject(locator); ok {
			data, mimeType, err := r.objects.Download(ctx, bucket, name)
			if err != nil {
				return nil, fmt.Errorf("reading stored object: %w", err)
			}
			return &InlineData{MimeType: mimeType, Data: data}, nil
		}
	}

	return r.fetch(ctx, locator)
}

func (r *Resolver) fetch(ctx context.Context, locator string) (*InlineData, error) {
	if !strings.HasPrefix(locator, "http://") && !strings.HasPrefix(locator, "https://") {
		return nil, fmt.Errorf("unsupported locator scheme")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Accept", fetchAccept)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching attachment: status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("reading attachment: %w", err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("attachment exceeds %d bytes", r.maxBytes)
	}

	mimeType := blob.TrimMimeParams(resp.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = blob.DetectMimeType(data)
	}

	return &InlineData{MimeType: mimeType, Data: data}, nil
}

func truncateLocator(locator string) string {
	if mediaurl.IsData(locator) {
		if mimeType, ok := mediaurl.DataMimeType(locator); ok {
			return "data:" + mimeType
		}
		return "data:"
	}
	if len(locator) > 200 {
		return locator[:200]
	}
	return locator
}
