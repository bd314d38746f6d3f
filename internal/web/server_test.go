package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmf87/l3vision/internal/auth"
	"github.com/bmf87/l3vision/internal/cache"
	"github.com/bmf87/l3vision/internal/chat"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
	"github.com/bmf87/l3vision/internal/observability"
	"github.com/bmf87/l3vision/internal/testutil"
)

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(_ context.Context, _ domain.DocumentBytes) (*domain.OutputImage, error) {
	return &domain.OutputImage{Data: []byte{0xff, 0xd8}, MediaType: domain.MediaTypeJPEG, Width: 1024, Height: 1024}, nil
}

type fakeModel struct {
	chunks []string
	err    error
}

func (m *fakeModel) Ask(_ context.Context, _ string, _ domain.OutputImage, _ string, chunkCh chan<- string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	for _, c := range m.chunks {
		if chunkCh != nil {
			chunkCh <- c
		}
	}
	return strings.Join(m.chunks, ""), nil
}

// testClient replays the session cookie like a browser.
type testClient struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newTestServer(t *testing.T, model *fakeModel, maxUpload int64) *testClient {
	t.Helper()

	catalog, err := llm.NewCatalog(testutil.Models(), []string{"llama", "google"}, "google/gemini-3-pro-preview")
	require.NoError(t, err)

	mem := cache.NewMemoryClient(100)
	t.Cleanup(func() { mem.Close() })
	svc := chat.NewService(chat.NewStore(mem, time.Hour, catalog.Default().ID), fakeNormalizer{}, model, catalog, nil)

	authn, err := auth.New(auth.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { authn.Close() })

	srv, err := New(Options{Chat: svc, Auth: authn, MaxUploadBytes: maxUpload, RequestTimeout: 5 * time.Second})
	require.NoError(t, err)

	return &testClient{t: t, handler: srv.Handler()}
}

func (c *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == auth.SessionCookieName {
			if ck.MaxAge < 0 {
				c.cookie = nil
			} else {
				c.cookie = ck
			}
		}
	}
	return rec
}

func (c *testClient) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *testClient) postForm(path, form string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *testClient) postUpload(path, fileName string, data []byte, prompt string) *httptest.ResponseRecorder {
	c.t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		require.NoError(c.t, err)
		_, err = fw.Write(data)
		require.NoError(c.t, err)
	}
	require.NoError(c.t, mw.WriteField("prompt", prompt))
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

var pdfBytes = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

func TestHealth(t *testing.T) {
	c := newTestServer(t, &fakeModel{}, 0)

	rec := c.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"l3vision"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestStaticAvatars(t *testing.T) {
	c := newTestServer(t, &fakeModel{}, 0)

	for _, a := range domain.Avatars {
		rec := c.get(a.ImagePath())
		assert.Equal(t, http.StatusOK, rec.Code, a)
	}
	assert.Equal(t, http.StatusOK, c.get(botAvatar).Code)
}

func TestAPIAsk_JSON(t *testing.T) {
	c := newTestServer(t, &fakeModel{chunks: []string{"A bar ", "chart."}}, 0)

	rec := c.postUpload("/api/v1/ask", "report.pdf", pdfBytes, "What is this?")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "A bar chart.", resp.Answer)
	assert.Equal(t, "google/gemini-3-pro-preview", resp.Model)
	assert.Equal(t, domain.MediaTypeJPEG, resp.Image.MediaType)
	assert.Equal(t, 2, resp.Messages)

	rec = c.get("/api/v1/history")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "report.pdf", hist.Messages[0].Attachment)
	assert.Equal(t, "assistant", hist.Messages[1].Role)
}

func TestAPIAsk_ErrorStatus(t *testing.T) {
	tests := []struct {
		name      string
		model     *fakeModel
		maxUpload int64
		file      string
		data      []byte
		prompt    string
		want      int
	}{
		{"missing prompt", &fakeModel{chunks: []string{"x"}}, 0, "a.pdf", pdfBytes, " ", http.StatusBadRequest},
		{"missing file", &fakeModel{chunks: []string{"x"}}, 0, "", nil, "q", http.StatusBadRequest},
		{"unsupported format", &fakeModel{chunks: []string{"x"}}, 0, "notes.txt", []byte("plain text notes"), "q", http.StatusUnsupportedMediaType},
		{"upload too large", &fakeModel{chunks: []string{"x"}}, 1024, "big.pdf", bytes.Repeat([]byte("a"), 4096), "q", http.StatusRequestEntityTooLarge},
		{"rate limited", &fakeModel{err: domain.RateLimitError("429", nil)}, 0, "a.pdf", pdfBytes, "q", http.StatusTooManyRequests},
		{"gateway failure", &fakeModel{err: domain.APIError("boom", nil)}, 0, "a.pdf", pdfBytes, "q", http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.model, tt.maxUpload)

			rec := c.postUpload("/api/v1/ask", tt.file, tt.data, tt.prompt)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAPIAsk_Stream(t *testing.T) {
	c := newTestServer(t, &fakeModel{chunks: []string{"Hello", " world"}}, 0)

	rec := c.postUpload("/api/v1/ask?stream=true", "a.pdf", pdfBytes, "q")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: chunk\ndata: \"Hello\"\n\n")
	assert.Contains(t, body, "event: chunk\ndata: \" world\"\n\n")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"answer":"Hello world"`)
	assert.Less(t, strings.Index(body, "Hello"), strings.Index(body, "event: done"))
}

func TestAPIAsk_StreamFailsBeforeFirstChunk(t *testing.T) {
	c := newTestServer(t, &fakeModel{err: domain.RateLimitError("429", errors.New("HTTP 429"))}, 0)

	rec := c.postUpload("/api/v1/ask?stream=true", "a.pdf", pdfBytes, "q")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestAPIModels(t *testing.T) {
	c := newTestServer(t, &fakeModel{}, 0)

	rec := c.get("/api/v1/models")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "google/gemini-3-pro-preview", resp.Default)
	require.Len(t, resp.Providers, 2)
	assert.Equal(t, "llama", resp.Providers[0].Name)

	rec = c.get("/api/v1/models?provider=google")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 1)
	assert.Equal(t, []string{"google/gemini-3-pro-preview"}, resp.Providers[0].Models)

	assert.Equal(t, http.StatusNotFound, c.get("/api/v1/models?provider=openai").Code)
}

func TestChatPage_FlowAndSanitizing(t *testing.T) {
	c := newTestServer(t, &fakeModel{chunks: []string{"**Bold** finding <script>alert(1)</script>"}}, 0)

	rec := c.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "VQA Chatbot")
	assert.Contains(t, rec.Body.String(), auth.DevEmail)

	rec = c.postUpload("/chat", "slides.pdf", pdfBytes, "Summarize *this*")
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	page := c.get("/").Body.String()
	assert.Contains(t, page, "<strong>Bold</strong>")
	assert.Contains(t, page, "<em>this</em>")
	assert.Contains(t, page, "slides.pdf")
	assert.NotContains(t, page, "<script>alert(1)</script>")
	assert.Contains(t, page, "/static/images/bot.svg")
}

func TestChatPage_ErrorRendersMessage(t *testing.T) {
	c := newTestServer(t, &fakeModel{err: domain.RateLimitError("429", nil)}, 0)

	rec := c.postUpload("/chat", "a.pdf", pdfBytes, "q")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limits have been exceeded")
}

func TestSettingsClearAndLogout(t *testing.T) {
	c := newTestServer(t, &fakeModel{chunks: []string{"ok"}}, 0)

	rec := c.postForm("/settings", "model=meta-llama/llama-4-maverick&avatar=hacker")
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = c.postForm("/settings", "model=gpt-4o")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, c.postUpload("/api/v1/ask", "a.pdf", pdfBytes, "q").Code)

	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(c.get("/api/v1/history").Body.Bytes(), &hist))
	assert.Equal(t, "meta-llama/llama-4-maverick", hist.Model)
	assert.Equal(t, "hacker", hist.Avatar)
	assert.Len(t, hist.Messages, 2)

	require.Equal(t, http.StatusSeeOther, c.postForm("/chat/clear", "").Code)
	require.NoError(t, json.Unmarshal(c.get("/api/v1/history").Body.Bytes(), &hist))
	assert.Empty(t, hist.Messages)
	assert.Equal(t, "hacker", hist.Avatar)

	sessionID := hist.SessionID
	rec = c.postForm("/logout", "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	require.NoError(t, json.Unmarshal(c.get("/api/v1/history").Body.Bytes(), &hist))
	assert.NotEqual(t, sessionID, hist.SessionID)
	assert.Equal(t, "male", hist.Avatar)
}

func TestWriteJSON_LogsEncodeFailure(t *testing.T) {
	var logs bytes.Buffer
	s := &Server{logger: observability.NewLogger(observability.LogConfig{Level: "debug", Output: &logs})}

	rec := httptest.NewRecorder()
	s.writeJSON(rec, http.StatusOK, map[string]any{"bad": make(chan int)})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, logs.String(), "failed to encode JSON response")
	assert.Contains(t, logs.String(), `"status":200`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ValidationError("x", nil), http.StatusBadRequest},
		{domain.UnsupportedFormatError("x", nil), http.StatusUnsupportedMediaType},
		{domain.EmptyDocumentError("x"), http.StatusUnprocessableEntity},
		{domain.PayloadTooLargeError(4, 3), http.StatusRequestEntityTooLarge},
		{errUploadTooLarge, http.StatusRequestEntityTooLarge},
		{domain.RateLimitError("x", nil), http.StatusTooManyRequests},
		{domain.CollaboratorError("x", nil), http.StatusBadGateway},
		{domain.APIError("x", nil), http.StatusBadGateway},
		{domain.AuthError("x", nil), http.StatusUnauthorized},
		{domain.EncodingError("x", nil), http.StatusInternalServerError},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestMarkdown_Render(t *testing.T) {
	md := NewMarkdown()

	out := string(md.Render("# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n<img src=x onerror=alert(1)>"))
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "<table>")
	assert.NotContains(t, out, "onerror")
}
