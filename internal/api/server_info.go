package api

import (
	"net/http"

	"assistant/internal/config"
	"assistant/internal/ws"
)

type ServerInfoHandler struct {
	info ServerInfoResponse
}

func NewServerInfoHandler(cfg *config.Config) *ServerInfoHandler {
	return &ServerInfoHandler{
		info: ServerInfoResponse{
			Name:                cfg.Server.Name,
			Model:               cfg.Completion.Model,
			UploadMaxBytes:      int64(cfg.Storage.UploadMaxBytes),
			InlineImageMaxBytes: int64(cfg.Storage.InlineImageMaxBytes),
			AllowedMimeTypes:    cfg.Storage.AllowedMimeTypes,
			MaxMessageLength:    cfg.Chat.MaxMessageLength,
			ProtocolVersion:     ws.ProtocolVersion,
		},
	}
}

type ServerInfoResponse struct {
	Name                string   `json:"name"`
	Model               string   `json:"model"`
	UploadMaxBytes      int64    `json:"uploadMaxBytes"`
	InlineImageMaxBytes int64    `json:"inlineImageMaxBytes"`
	AllowedMimeTypes    []string `json:"allowedMimeTypes"`
	MaxMessageLength    int      `json:"maxMessageLength"`
	ProtocolVersion     int      `json:"protocolVersion"`
}

// GET /api/v1/server/info
func (h *ServerInfoHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}
