package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"assistant/internal/chat"
	"assistant/internal/completion"
	"assistant/internal/constants"
	"assistant/internal/models"
)

const maxMessageHistoryLimit = 500

type MessageHandler struct{}

func NewMessageHandler() *MessageHandler {
	return &MessageHandler{}
}

type MessageListResponse struct {
	Messages []models.MessageView `json:"messages"`
	Total    int                  `json:"total"`
}

type SendMessageRequest struct {
	Content string `json:"content" validate:"max=16000"`
}

type SendMessageResponse struct {
	UserMessage      models.MessageView  `json:"userMessage"`
	AssistantMessage *models.MessageView `json:"assistantMessage,omitempty"`
	Error            string              `json:"error,omitempty"`
}

// GET /api/v1/sessions/{sessionID}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, validationMessage, ok := parseHistoryLimit(r)
	if !ok {
		badRequest(w, validationMessage)
		return
	}

	msgs := GetSession(r).Conversation.Snapshot()
	total := len(msgs)
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	writeJSON(w, http.StatusOK, MessageListResponse{
		Messages: models.NewMessageViews(msgs),
		Total:    total,
	})
}

// POST /api/v1/sessions/{sessionID}/messages
//
// Responds 202 once the user message is appended. With ?wait=true the
// response is held until the assistant message exists.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			payloadTooLarge(w, "Request body too large")
			return
		}
		if errors.Is(err, errTooLong) {
			writeError(w, http.StatusBadRequest, constants.ErrCodeMessageTooLong, "Message is too long")
			return
		}
		badRequest(w, err.Error())
		return
	}

	wait, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("wait")))

	session := GetSession(r)
	turn, err := session.Controller.Submit(r.Context(), req.Content)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	resp := SendMessageResponse{UserMessage: models.NewMessageView(turn.UserMessage)}
	if !wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	select {
	case <-turn.Done():
	case <-r.Context().Done():
		return
	}

	reply, replyErr := turn.Wait()
	view := models.NewMessageView(reply)
	resp.AssistantMessage = &view
	if replyErr != nil {
		resp.Error = completion.Describe(replyErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeSubmitError(w http.ResponseWriter, err error) {
	code := chat.ErrorCode(err)
	switch code {
	case constants.ErrCodeReplyPending:
		writeError(w, http.StatusConflict, code, "A reply is still pending")
	case constants.ErrCodeUploadsInFlight:
		writeError(w, http.StatusConflict, code, "Attachments are still uploading")
	case constants.ErrCodeEmptyMessage:
		writeError(w, http.StatusBadRequest, code, "Message has no text and no attachments")
	case constants.ErrCodeMessageTooLong:
		writeError(w, http.StatusBadRequest, code, "Message is too long")
	default:
		internalError(w)
	}
}

func parseHistoryLimit(r *http.Request) (int, string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, "", true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxMessageHistoryLimit {
		return 0, "limit must be between 1 and " + strconv.Itoa(maxMessageHistoryLimit), false
	}
	return limit, "", true
}

func isBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}
