package mediaurl

import (
	"net/url"
	"path"
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindPDF   Kind = "pdf"
	KindFile  Kind = "file"
)

var extensionKinds = map[string]Kind{
	".jpg":  KindImage,
	".jpeg": KindImage,
	".png":  KindImage,
	".gif":  KindImage,
	".webp": KindImage,
	".bmp":  KindImage,
	".avif": KindImage,
	".heic": KindImage,
	".svg":  KindImage,
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".mov":  KindVideo,
	".webm": KindVideo,
	".ogv":  KindVideo,
	".mkv":  KindVideo,
	".avi":  KindVideo,
	".pdf":  KindPDF,
}

// Classify infers how a locator should be rendered. Data locators are
// classified by their media type, URLs by the extension of the last path
// segment or an /image/ or /video/ segment. Anything else is KindFile.
func Classify(locator string) Kind {
	locator = strings.TrimSpace(locator)
	if mimeType, ok := DataMimeType(locator); ok {
		return kindForMime(mimeType)
	}

	p := locator
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if kind, ok := extensionKinds[strings.ToLower(path.Ext(p))]; ok {
		return kind
	}

	for _, segment := range strings.Split(strings.ToLower(p), "/") {
		switch segment {
		case "image", "images":
			return KindImage
		case "video", "videos":
			return KindVideo
		}
	}

	return KindFile
}

func kindForMime(mimeType string) Kind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return KindImage
	case strings.HasPrefix(mimeType, "video/"):
		return KindVideo
	case mimeType == "application/pdf":
		return KindPDF
	}
	return KindFile
}
