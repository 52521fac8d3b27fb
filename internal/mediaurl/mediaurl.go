package mediaurl

import (
	"net/url"
	"strings"
)

const PathPrefix = "/storage/v1/object/public/"

// Object builds the public URL for an object stored in bucket.
func Object(baseURL, bucket, name string) string {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	escaped := make([]string, 0, 4)
	for _, segment := range strings.Split(name, "/") {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return baseURL + PathPrefix + url.PathEscape(bucket) + "/" + strings.Join(escaped, "/")
}

// ParseObject extracts bucket and object name from a public object URL or path.
func ParseObject(raw string) (bucket, name string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", false
	}

	path := u.Path
	if path == "" {
		path = raw
	}

	if !strings.HasPrefix(path, PathPrefix) {
		return "", "", false
	}

	rest := strings.TrimPrefix(path, PathPrefix)
	bucket, name, found := strings.Cut(rest, "/")
	if !found || bucket == "" || name == "" {
		return "", "", false
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", "", false
		}
	}

	return bucket, name, true
}

// SameOrigin reports whether raw points at the host serving baseURL.
func SameOrigin(baseURL, raw string) bool {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || base.Host == "" {
		return false
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, base.Scheme) && strings.EqualFold(u.Host, base.Host)
}
