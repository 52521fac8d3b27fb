package mediaurl

import (
	"bytes"
	"testing"
)

func TestObjectRoundTrip(t *testing.T) {
	raw := Object("https://assets.example.com/", "media-uploads", "1700000000000-cat_photo.png")
	if raw != "https://assets.example.com/storage/v1/object/public/media-uploads/1700000000000-cat_photo.png" {
		t.Fatalf("Object() = %q", raw)
	}

	bucket, name, ok := ParseObject(raw)
	if !ok {
		t.Fatalf("ParseObject(%q) ok = false, want true", raw)
	}
	if bucket != "media-uploads" || name != "1700000000000-cat_photo.png" {
		t.Fatalf("ParseObject() = (%q, %q), want (media-uploads, 1700000000000-cat_photo.png)", bucket, name)
	}
}

func TestParseObjectRejectsInvalid(t *testing.T) {
	tests := []string{
		"",
		"https://example.com/media/blob",
		"/storage/v1/object/public/",
		"/storage/v1/object/public/bucket",
		"/storage/v1/object/public/bucket/",
		"/storage/v1/object/public/bucket/../secret",
	}
	for _, raw := range tests {
		if _, _, ok := ParseObject(raw); ok {
			t.Fatalf("ParseObject(%q) ok = true, want false", raw)
		}
	}
}

func TestSameOrigin(t *testing.T) {
	if !SameOrigin("http://localhost:8080", "http://LOCALHOST:8080/storage/v1/object/public/b/x") {
		t.Fatal("SameOrigin() = false for matching host")
	}
	if SameOrigin("http://localhost:8080", "https://localhost:8080/x") {
		t.Fatal("SameOrigin() = true for different scheme")
	}
	if SameOrigin("", "http://localhost:8080/x") {
		t.Fatal("SameOrigin() = true for empty base")
	}
}

func TestDataRoundTrip(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}
	raw := EncodeData("image/png", payload)

	mimeType, data, err := ParseData(raw)
	if err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if mimeType != "image/png" {
		t.Fatalf("ParseData() mime = %q, want image/png", mimeType)
	}
	if !bytes.Equal(data, payload) {
		t.Fatalf("ParseData() data = %v, want %v", data, payload)
	}
}

func TestParseDataRejectsNonBase64(t *testing.T) {
	for _, raw := range []string{"data:text/plain,hello", "data:image/png;base64", "https://x/y.png", "data:image/png;base64,@@@"} {
		if _, _, err := ParseData(raw); err == nil {
			t.Fatalf("ParseData(%q) error = nil, want error", raw)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		locator string
		want    Kind
	}{
		{locator: "data:image/png;base64,AAAA", want: KindImage},
		{locator: "data:video/mp4;base64,AAAA", want: KindVideo},
		{locator: "data:application/pdf;base64,AAAA", want: KindPDF},
		{locator: "data:text/plain;base64,AAAA", want: KindFile},
		{locator: "https://x.test/storage/v1/object/public/b/1-photo.JPG", want: KindImage},
		{locator: "https://x.test/a/clip.webm?token=abc", want: KindVideo},
		{locator: "https://x.test/doc.pdf#page=2", want: KindPDF},
		{locator: "https://cdn.x.test/image/upload/abc123", want: KindImage},
		{locator: "https://cdn.x.test/video/abc123", want: KindVideo},
		{locator: "https://x.test/notes.txt", want: KindFile},
		{locator: "", want: KindFile},
		{locator: "not a url at all", want: KindFile},
		{locator: "relative/path/pic.gif?x=1", want: KindImage},
	}

	for _, tt := range tests {
		if got := Classify(tt.locator); got != tt.want {
			t.Fatalf("Classify(%q) = %q, want %q", tt.locator, got, tt.want)
		}
	}
}
