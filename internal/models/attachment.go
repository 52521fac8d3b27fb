package models

type Attachment struct {
	Name       string `json:"name"`
	MimeType   string `json:"mimeType"`
	Size       int64  `json:"size"`
	PreviewRef string `json:"previewRef,omitempty"`
	Locator    string `json:"url"`
	Inline     bool   `json:"inline"`
}
