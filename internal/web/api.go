package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bmf87/l3vision/internal/chat"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
)

// ModelsResponse lists the catalog grouped by provider.
type ModelsResponse struct {
	Default   string             `json:"default"`
	Providers []ProviderResponse `json:"providers"`
}

// ProviderResponse is one provider and its models.
type ProviderResponse struct {
	Name   string   `json:"name"`
	Models []string `json:"models"`
}

// MessageResponse is one chat message.
type MessageResponse struct {
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	Attachment string    `json:"attachment,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// HistoryResponse is the caller's session.
type HistoryResponse struct {
	SessionID string            `json:"sessionId"`
	Model     string            `json:"model"`
	Avatar    string            `json:"avatar"`
	Messages  []MessageResponse `json:"messages"`
}

// ImageResponse describes the image sent to the model.
type ImageResponse struct {
	MediaType string `json:"mediaType"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Bytes     int    `json:"bytes"`
}

// AskResponse is a successful answer.
type AskResponse struct {
	Answer   string        `json:"answer"`
	Model    string        `json:"model"`
	Image    ImageResponse `json:"image"`
	Messages int           `json:"messages"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	catalog := s.chat.Catalog()

	providers := catalog.Providers()
	if p := r.URL.Query().Get("provider"); p != "" {
		providers = []string{p}
	}

	resp := ModelsResponse{Default: catalog.Default().ID}
	for _, p := range providers {
		models, err := catalog.ByProvider(p)
		if err != nil {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown provider %q", p), "")
			return
		}
		resp.Providers = append(resp.Providers, ProviderResponse{Name: p, Models: modelIDs(models)})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	sess, err := s.chat.History(r.Context(), id.SessionID, id.Email)
	if err != nil {
		s.writeError(w, statusFor(err), domain.UserMessage(err), "")
		return
	}

	resp := HistoryResponse{
		SessionID: sess.ID,
		Model:     sess.Model,
		Avatar:    string(sess.Avatar),
		Messages:  make([]MessageResponse, 0, len(sess.Messages)),
	}
	for _, m := range sess.Messages {
		resp.Messages = append(resp.Messages, MessageResponse{
			Role:       string(m.Role),
			Content:    m.Content,
			Attachment: m.Attachment,
			Timestamp:  m.Timestamp,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleAsk answers a multipart question as JSON, or as server-sent events
// when the stream query parameter is set.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, statusFor(err), s.userMessage(err), "")
		return
	}

	in := chat.AskInput{
		SessionID:    id.SessionID,
		Email:        id.Email,
		FileName:     up.name,
		DeclaredMIME: up.mimeType,
		Data:         up.data,
		Prompt:       up.prompt,
	}

	if r.URL.Query().Get("stream") == "true" {
		s.streamAsk(w, r, in)
		return
	}

	res, err := s.chat.Ask(r.Context(), in)
	if err != nil {
		s.writeError(w, statusFor(err), domain.UserMessage(err), "")
		return
	}
	s.writeJSON(w, http.StatusOK, askResponse(res))
}

// streamAsk relays answer chunks as "chunk" events and ends with a "done"
// or "error" event. Failures before the first chunk get a plain JSON error.
func (s *Server) streamAsk(w http.ResponseWriter, r *http.Request, in chat.AskInput) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "Streaming is not supported.", "")
		return
	}

	type outcome struct {
		res *chat.AskResult
		err error
	}

	chunks := make(chan string, 16)
	in.Chunks = chunks
	done := make(chan outcome, 1)
	go func() {
		res, err := s.chat.Ask(r.Context(), in)
		close(chunks)
		done <- outcome{res, err}
	}()

	started := false
	for chunk := range chunks {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		writeEvent(w, "chunk", chunk)
		flusher.Flush()
	}

	out := <-done
	if out.err != nil {
		if !started {
			s.writeError(w, statusFor(out.err), domain.UserMessage(out.err), "")
			return
		}
		writeEvent(w, "error", map[string]string{"message": domain.UserMessage(out.err)})
		flusher.Flush()
		return
	}

	if !started {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
	}
	writeEvent(w, "done", askResponse(out.res))
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, _ := json.Marshal(v)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func askResponse(res *chat.AskResult) AskResponse {
	return AskResponse{
		Answer: res.Answer,
		Model:  res.Model,
		Image: ImageResponse{
			MediaType: res.Image.MediaType,
			Width:     res.Image.Width,
			Height:    res.Image.Height,
			Bytes:     len(res.Image.Data),
		},
		Messages: len(res.Session.Messages),
	}
}

func modelIDs(models []llm.Model) []string {
	ids := make([]string, len(models))
	for i, m := range models {
		ids[i] = m.ID
	}
	return ids
}
