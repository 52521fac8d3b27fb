package api

import (
	"net/http"
	"time"

	"assistant/internal/chat"
	"assistant/internal/models"
)

type SessionHandler struct {
	manager *chat.Manager
}

func NewSessionHandler(manager *chat.Manager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

type SessionResponse struct {
	ID          string               `json:"id"`
	CreatedAt   string               `json:"createdAt"`
	State       chat.State           `json:"state"`
	Attachments []models.Attachment  `json:"attachments"`
	Uploading   bool                 `json:"uploading"`
	Messages    []models.MessageView `json:"messages,omitempty"`
}

func newSessionResponse(s *chat.Session, withMessages bool) SessionResponse {
	staged := s.Attachments.Staged()
	if staged == nil {
		staged = []models.Attachment{}
	}
	resp := SessionResponse{
		ID:          s.ID,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339Nano),
		State:       s.Controller.State(),
		Attachments: staged,
		Uploading:   s.Attachments.Uploading(),
	}
	if withMessages {
		resp.Messages = models.NewMessageViews(s.Conversation.Snapshot())
	}
	return resp
}

// POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := h.manager.Create()
	writeJSON(w, http.StatusCreated, newSessionResponse(session, true))
}

// GET /api/v1/sessions/{sessionID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionResponse(GetSession(r), false))
}

// DELETE /api/v1/sessions/{sessionID}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.manager.Delete(GetSession(r).ID)
	w.WriteHeader(http.StatusNoContent)
}
