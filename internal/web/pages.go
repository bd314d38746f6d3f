package web

import (
	"html/template"
	"net/http"

	"github.com/bmf87/l3vision/internal/chat"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/llm"
)

const botAvatar = "/static/images/bot.svg"

type messageView struct {
	Role       domain.Role
	HTML       template.HTML
	Attachment string
	Avatar     string
}

type providerView struct {
	Name   string
	Models []llm.Model
}

type pageData struct {
	AppName     string
	Email       string
	AuthEnabled bool
	ActiveModel string
	Avatar      domain.Avatar
	Avatars     []domain.Avatar
	Providers   []providerView
	Messages    []messageView
	Error       string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusOK, "")
}

// handleChat answers one question and redirects back to the page. Failures
// render the page with a single message in place of the answer.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	up, err := s.readUpload(w, r)
	if err == nil {
		_, err = s.chat.Ask(r.Context(), chat.AskInput{
			SessionID:    id.SessionID,
			Email:        id.Email,
			FileName:     up.name,
			DeclaredMIME: up.mimeType,
			Data:         up.data,
			Prompt:       up.prompt,
		})
	}
	if err != nil {
		s.renderPage(w, r, statusFor(err), s.userMessage(err))
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	id := identity(r)

	if err := r.ParseForm(); err != nil {
		s.renderPage(w, r, http.StatusBadRequest, "The settings could not be read.")
		return
	}

	if model := r.PostForm.Get("model"); model != "" {
		if _, err := s.chat.SetModel(r.Context(), id.SessionID, id.Email, model); err != nil {
			s.renderPage(w, r, statusFor(err), s.userMessage(err))
			return
		}
		s.logger.WithContext(r.Context()).Info().Str("model", model).Msg("model changed")
	}

	if avatar := r.PostForm.Get("avatar"); avatar != "" {
		if _, err := s.chat.SetAvatar(r.Context(), id.SessionID, id.Email, avatar); err != nil {
			s.renderPage(w, r, statusFor(err), s.userMessage(err))
			return
		}
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if err := s.chat.Clear(r.Context(), id.SessionID, id.Email); err != nil {
		s.renderPage(w, r, statusFor(err), s.userMessage(err))
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout ends the chat session along with the sign-in.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id := s.auth.Logout(w, r); id != nil {
		if err := s.chat.End(r.Context(), id.SessionID); err != nil {
			s.logger.WithContext(r.Context()).Warn().Err(err).Msg("failed to delete session")
		}
	}

	target := "/"
	if s.auth.Enabled() {
		target = "/login"
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	id := identity(r)

	sess, err := s.chat.History(r.Context(), id.SessionID, id.Email)
	if err != nil {
		s.logger.WithContext(r.Context()).Error().Err(err).Msg("failed to load session")
		http.Error(w, domain.UserMessage(err), statusFor(err))
		return
	}

	catalog := s.chat.Catalog()
	data := pageData{
		AppName:     s.appName,
		Email:       id.Email,
		AuthEnabled: s.auth.Enabled(),
		ActiveModel: sess.Model,
		Avatar:      sess.Avatar,
		Avatars:     domain.Avatars,
		Error:       errMsg,
	}
	for _, p := range catalog.Providers() {
		models, _ := catalog.ByProvider(p)
		data.Providers = append(data.Providers, providerView{Name: p, Models: models})
	}
	for _, m := range sess.Messages {
		avatar := botAvatar
		if m.Role == domain.RoleUser {
			avatar = sess.Avatar.ImagePath()
		}
		data.Messages = append(data.Messages, messageView{
			Role:       m.Role,
			HTML:       s.markdown.Render(m.Content),
			Attachment: m.Attachment,
			Avatar:     avatar,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.page.Execute(w, data); err != nil {
		s.logger.WithContext(r.Context()).Error().Err(err).Msg("failed to render page")
	}
}
