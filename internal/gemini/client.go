package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"assistant/internal/completion"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	maxResponseBytes = 8 << 20
)

type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the generateContent REST endpoint directly.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

func (c *Client) Name() string {
	return "gemini_rest"
}

func (c *Client) Generate(ctx context.Context, req *completion.Request) (string, error) {
	body, err := json.Marshal(toWire(req))
	if err != nil {
		return "", completion.TransportError("encoding request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", completion.TransportError("building request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", completion.TransportError("sending request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", completion.TransportError("reading response", err)
	}

	var decoded generateResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if decodeErr == nil && decoded.Error != nil {
		return "", completion.ProviderError(describeAPIError(decoded.Error), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", completion.ProviderError(fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if decodeErr != nil {
		return "", completion.ProviderError("malformed response", decodeErr)
	}

	return extractReply(&decoded)
}

func extractReply(resp *generateResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", completion.EmptyError("prompt blocked: " + resp.PromptFeedback.BlockReason)
		}
		return "", completion.EmptyError("no candidates")
	}

	first := resp.Candidates[0]
	var b strings.Builder
	if first.Content != nil {
		for _, p := range first.Content.Parts {
			b.WriteString(p.Text)
		}
	}

	reply := b.String()
	if strings.TrimSpace(reply) == "" {
		if first.FinishReason != "" {
			return "", completion.EmptyError("finish reason " + first.FinishReason)
		}
		return "", completion.EmptyError("candidate has no text")
	}
	return reply, nil
}

func describeAPIError(e *apiError) string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Status)
	}
	return msg
}

func toWire(req *completion.Request) *generateRequest {
	out := &generateRequest{
		Contents: make([]content, 0, len(req.Turns)),
	}

	if req.SystemInstruction != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}

	for _, turn := range req.Turns {
		c := content{Role: string(turn.Role), Parts: make([]part, 0, len(turn.Parts))}
		for _, p := range turn.Parts {
			if p.Inline != nil {
				c.Parts = append(c.Parts, part{InlineData: &inlineData{MimeType: p.Inline.MimeType, Data: p.Inline.Data}})
				continue
			}
			c.Parts = append(c.Parts, part{Text: p.Text})
		}
		out.Contents = append(out.Contents, c)
	}

	cfg := req.Config
	temperature, topP := cfg.Temperature, cfg.TopP
	out.GenerationConfig = &generationConf{
		Temperature:     &temperature,
		TopK:            cfg.TopK,
		TopP:            &topP,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}

	return out
}
