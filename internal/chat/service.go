// Package chat implements the visual question answering conversation flow.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
	"github.com/bmf87/l3vision/internal/normalize"
	"github.com/bmf87/l3vision/internal/observability"
)

// AskInput is one question about one uploaded file.
type AskInput struct {
	SessionID    string
	Email        string
	FileName     string
	DeclaredMIME string
	Data         []byte
	Prompt       string
	// Chunks receives the streamed answer when non-nil. The caller must
	// drain it until Ask returns.
	Chunks chan<- string
}

// AskResult is a successful answer.
type AskResult struct {
	Answer  string
	Model   string
	Image   *domain.OutputImage
	Session *Session
}

// Service orchestrates the chat workflow
type Service struct {
	store      *Store
	normalizer domain.Normalizer
	model      domain.VisionModel
	catalog    *llm.Catalog
	logger     *observability.Logger
	now        func() time.Time
}

// NewService creates a new chat service
func NewService(store *Store, normalizer domain.Normalizer, model domain.VisionModel, catalog *llm.Catalog, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Service{
		store:      store,
		normalizer: normalizer,
		model:      model,
		catalog:    catalog,
		logger:     logger.WithOperation("chat"),
		now:        time.Now,
	}
}

// Catalog returns the selectable models.
func (s *Service) Catalog() *llm.Catalog {
	return s.catalog
}

// Ask records the question, converts the upload, asks the session's model
// and records the answer. On failure the question stays in the history, no
// answer is recorded, and the returned error maps to one user-facing message
// through domain.UserMessage.
func (s *Service) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, domain.ValidationError("Please enter a question about the uploaded file.", nil)
	}
	if len(in.Data) == 0 {
		return nil, domain.ValidationError("Please upload a file to ask about.", nil)
	}

	logger := s.logger.WithContext(ctx).WithSession(in.SessionID)

	sess, err := s.store.Update(ctx, in.SessionID, in.Email, func(sess *Session) error {
		sess.Messages = append(sess.Messages, domain.ChatMessage{
			Role:       domain.RoleUser,
			Content:    prompt,
			Attachment: in.FileName,
			Timestamp:  s.now(),
		})
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record question")
		return nil, err
	}
	model := sess.Model
	if _, err := s.catalog.ByID(model); err != nil {
		model = s.catalog.Default().ID
	}

	img, err := s.convert(ctx, in)
	if err != nil {
		logger.Error().Err(err).Str("file", in.FileName).Msg("document conversion failed")
		return nil, err
	}

	answer, err := s.model.Ask(ctx, model, *img, prompt, in.Chunks)
	if err != nil {
		logger.Error().Err(err).Str("model", model).Msg("model request failed")
		return nil, err
	}

	sess, err = s.store.Update(ctx, in.SessionID, in.Email, func(sess *Session) error {
		sess.Messages = append(sess.Messages, domain.ChatMessage{
			Role:      domain.RoleAssistant,
			Content:   answer,
			Timestamp: s.now(),
		})
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to record answer")
		return nil, err
	}

	logger.Info().
		Str("model", model).
		Str("file", in.FileName).
		Int("messages", len(sess.Messages)).
		Msg("answered question")

	return &AskResult{Answer: answer, Model: model, Image: img, Session: sess}, nil
}

func (s *Service) convert(ctx context.Context, in AskInput) (*domain.OutputImage, error) {
	declared := in.DeclaredMIME
	if declared == "" || declared == "application/octet-stream" {
		if byName := normalize.DeclaredFromName(in.FileName); byName != "" {
			declared = byName
		}
	}

	format, mediaType, err := normalize.Detect(in.Data, declared)
	if err != nil {
		return nil, err
	}

	return s.normalizer.Normalize(ctx, domain.DocumentBytes{
		Name:      in.FileName,
		Data:      in.Data,
		Format:    format,
		MediaType: mediaType,
	})
}

// SetModel switches the session's model. The model must be in the catalog.
func (s *Service) SetModel(ctx context.Context, sessionID, email, modelID string) (*Session, error) {
	m, err := s.catalog.ByID(modelID)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, sessionID, email, func(sess *Session) error {
		sess.Model = m.ID
		return nil
	})
}

// SetAvatar changes the picture shown next to the user's messages.
func (s *Service) SetAvatar(ctx context.Context, sessionID, email, avatar string) (*Session, error) {
	a, err := domain.ParseAvatar(avatar)
	if err != nil {
		return nil, err
	}
	return s.store.Update(ctx, sessionID, email, func(sess *Session) error {
		sess.Avatar = a
		return nil
	})
}

// History returns the session with its messages in order.
func (s *Service) History(ctx context.Context, sessionID, email string) (*Session, error) {
	sess, err := s.store.Load(ctx, sessionID, email)
	if err != nil {
		return nil, err
	}
	// Fall back when the configured catalog no longer offers the model
	if _, err := s.catalog.ByID(sess.Model); err != nil {
		sess.Model = s.catalog.Default().ID
	}
	return sess, nil
}

// Clear drops the conversation but keeps the model and avatar choice.
func (s *Service) Clear(ctx context.Context, sessionID, email string) error {
	_, err := s.store.Update(ctx, sessionID, email, func(sess *Session) error {
		sess.Messages = []domain.ChatMessage{}
		return nil
	})
	return err
}

// End deletes the session entirely, on logout.
func (s *Service) End(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, sessionID)
}
