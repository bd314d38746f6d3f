package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmf87/l3vision/internal/cache"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
	"github.com/bmf87/l3vision/internal/testutil"
)

const (
	testSession = "sess-1"
	testEmail   = "ada@example.com"
)

type fakeNormalizer struct {
	got domain.DocumentBytes
	out *domain.OutputImage
	err error
}

func (n *fakeNormalizer) Normalize(_ context.Context, doc domain.DocumentBytes) (*domain.OutputImage, error) {
	n.got = doc
	return n.out, n.err
}

type fakeModel struct {
	mu       sync.Mutex
	gotModel string
	answer   string
	err      error
}

func (m *fakeModel) Ask(_ context.Context, model string, _ domain.OutputImage, _ string, chunkCh chan<- string) (string, error) {
	m.mu.Lock()
	m.gotModel = model
	m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if chunkCh != nil {
		chunkCh <- m.answer
	}
	return m.answer, nil
}

func newTestService(t *testing.T, n *fakeNormalizer, m *fakeModel) *Service {
	t.Helper()

	catalog, err := llm.NewCatalog(testutil.Models(), []string{"llama", "google"}, "google/gemini-3-pro-preview")
	require.NoError(t, err)

	mem := cache.NewMemoryClient(100)
	t.Cleanup(func() { mem.Close() })

	store := NewStore(mem, time.Hour, catalog.Default().ID)
	return NewService(store, n, m, catalog, nil)
}

func jpegOut() *domain.OutputImage {
	return &domain.OutputImage{Data: []byte{1, 2, 3}, MediaType: domain.MediaTypeJPEG, Width: 1024, Height: 1024}
}

func TestAsk_Success(t *testing.T) {
	n := &fakeNormalizer{out: jpegOut()}
	m := &fakeModel{answer: "It is a bar chart."}
	svc := newTestService(t, n, m)

	chunks := make(chan string, 1)
	res, err := svc.Ask(context.Background(), AskInput{
		SessionID: testSession,
		Email:     testEmail,
		FileName:  "report.pdf",
		Data:      []byte("%PDF-1.7 fake"),
		Prompt:    "  What is this?  ",
		Chunks:    chunks,
	})
	require.NoError(t, err)

	assert.Equal(t, "It is a bar chart.", res.Answer)
	assert.Equal(t, "google/gemini-3-pro-preview", res.Model)
	assert.Equal(t, "It is a bar chart.", <-chunks)
	assert.Equal(t, domain.PDFPage, n.got.Format)

	require.Len(t, res.Session.Messages, 2)
	assert.Equal(t, domain.RoleUser, res.Session.Messages[0].Role)
	assert.Equal(t, "What is this?", res.Session.Messages[0].Content)
	assert.Equal(t, "report.pdf", res.Session.Messages[0].Attachment)
	assert.Equal(t, domain.RoleAssistant, res.Session.Messages[1].Role)

	hist, err := svc.History(context.Background(), testSession, testEmail)
	require.NoError(t, err)
	assert.Len(t, hist.Messages, 2)
}

func TestAsk_Validation(t *testing.T) {
	svc := newTestService(t, &fakeNormalizer{out: jpegOut()}, &fakeModel{})

	_, err := svc.Ask(context.Background(), AskInput{SessionID: testSession, Email: testEmail, Data: []byte("x"), Prompt: " "})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.Ask(context.Background(), AskInput{SessionID: testSession, Email: testEmail, Prompt: "q"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	hist, err := svc.History(context.Background(), testSession, testEmail)
	require.NoError(t, err)
	assert.Empty(t, hist.Messages)
}

func TestAsk_FailuresKeepQuestionOnly(t *testing.T) {
	tests := []struct {
		name    string
		norm    *fakeNormalizer
		model   *fakeModel
		data    []byte
		wantErr error
		wantMsg string
	}{
		{
			name:    "unsupported upload",
			norm:    &fakeNormalizer{out: jpegOut()},
			model:   &fakeModel{answer: "x"},
			data:    []byte("just some text"),
			wantErr: domain.ErrUnsupportedFormat,
			wantMsg: "not supported",
		},
		{
			name:    "oversized deck",
			norm:    &fakeNormalizer{err: domain.PayloadTooLargeError(4<<20, 3<<20)},
			model:   &fakeModel{answer: "x"},
			data:    []byte("%PDF-1.7"),
			wantErr: domain.ErrPayloadTooLarge,
			wantMsg: "3MB",
		},
		{
			name:    "rate limited",
			norm:    &fakeNormalizer{out: jpegOut()},
			model:   &fakeModel{err: domain.RateLimitError("429", errors.New("HTTP 429"))},
			data:    []byte("%PDF-1.7"),
			wantErr: domain.ErrRateLimited,
			wantMsg: "Rate limits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, tt.norm, tt.model)

			_, err := svc.Ask(context.Background(), AskInput{
				SessionID: testSession,
				Email:     testEmail,
				FileName:  "upload",
				Data:      tt.data,
				Prompt:    "Describe it",
			})
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, domain.UserMessage(err), tt.wantMsg)

			hist, err := svc.History(context.Background(), testSession, testEmail)
			require.NoError(t, err)
			require.Len(t, hist.Messages, 1)
			assert.Equal(t, domain.RoleUser, hist.Messages[0].Role)
		})
	}
}

func TestAsk_DeclaredTypeFromFileName(t *testing.T) {
	n := &fakeNormalizer{out: jpegOut()}
	svc := newTestService(t, n, &fakeModel{answer: "slides"})

	_, err := svc.Ask(context.Background(), AskInput{
		SessionID:    testSession,
		Email:        testEmail,
		FileName:     "deck.pptx",
		DeclaredMIME: "application/octet-stream",
		Data:         []byte("PK\x03\x04\x14\x00\x00\x00\x00\x00"),
		Prompt:       "Summarize",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SlideDeck, n.got.Format)
}

func TestSetModelAndAvatar(t *testing.T) {
	m := &fakeModel{answer: "ok"}
	svc := newTestService(t, &fakeNormalizer{out: jpegOut()}, m)
	ctx := context.Background()

	_, err := svc.SetModel(ctx, testSession, testEmail, "gpt-4o")
	assert.ErrorIs(t, err, domain.ErrValidation)

	sess, err := svc.SetModel(ctx, testSession, testEmail, "meta-llama/llama-4-maverick")
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-4-maverick", sess.Model)

	_, err = svc.SetAvatar(ctx, testSession, testEmail, "robot")
	assert.ErrorIs(t, err, domain.ErrValidation)

	sess, err = svc.SetAvatar(ctx, testSession, testEmail, "hacker")
	require.NoError(t, err)
	assert.Equal(t, domain.AvatarHacker, sess.Avatar)

	_, err = svc.Ask(ctx, AskInput{SessionID: testSession, Email: testEmail, Data: testutil.PNG(t, 2, 2, testutil.Red), Prompt: "q"})
	require.NoError(t, err)
	assert.Equal(t, "meta-llama/llama-4-maverick", m.gotModel)
}

func TestClearKeepsPreferences(t *testing.T) {
	svc := newTestService(t, &fakeNormalizer{out: jpegOut()}, &fakeModel{answer: "ok"})
	ctx := context.Background()

	_, err := svc.SetAvatar(ctx, testSession, testEmail, "female")
	require.NoError(t, err)
	_, err = svc.Ask(ctx, AskInput{SessionID: testSession, Email: testEmail, Data: []byte("%PDF-1.7"), Prompt: "q"})
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, testSession, testEmail))

	sess, err := svc.History(ctx, testSession, testEmail)
	require.NoError(t, err)
	assert.Empty(t, sess.Messages)
	assert.Equal(t, domain.AvatarFemale, sess.Avatar)

	require.NoError(t, svc.End(ctx, testSession))
	sess, err = svc.History(ctx, testSession, testEmail)
	require.NoError(t, err)
	assert.Equal(t, domain.AvatarMale, sess.Avatar)
}

func TestStore_RejectsForeignSession(t *testing.T) {
	mem := cache.NewMemoryClient(10)
	defer mem.Close()
	store := NewStore(mem, time.Hour, "m")
	ctx := context.Background()

	_, err := store.Update(ctx, "s", "owner@example.com", func(*Session) error { return nil })
	require.NoError(t, err)

	_, err = store.Load(ctx, "s", "intruder@example.com")
	assert.ErrorIs(t, err, domain.ErrAuth)

	_, err = store.Load(ctx, "", "owner@example.com")
	assert.ErrorIs(t, err, domain.ErrAuth)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	mem := cache.NewMemoryClient(10)
	defer mem.Close()
	store := NewStore(mem, time.Hour, "m")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "s", testEmail, func(sess *Session) error {
				sess.Messages = append(sess.Messages, domain.ChatMessage{Role: domain.RoleUser, Content: "hi"})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	sess, err := store.Load(ctx, "s", testEmail)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 25)
}
