// Package web serves the chat page and the JSON API.
package web

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/bmf87/l3vision/internal/auth"
	"github.com/bmf87/l3vision/internal/chat"
	"github.com/bmf87/l3vision/internal/domain"
	"github.com/bmf87/l3vision/internal/observability"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// DefaultMaxUploadBytes caps multipart uploads when Options leaves it unset.
const DefaultMaxUploadBytes = 20 << 20

// Options configures the Server.
type Options struct {
	Chat           *chat.Service
	Auth           *auth.Authenticator
	Logger         *observability.Logger
	AppName        string
	MaxUploadBytes int64
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	chat      *chat.Service
	auth      *auth.Authenticator
	logger    *observability.Logger
	appName   string
	maxUpload int64
	timeout   time.Duration
	markdown  *Markdown
	page      *template.Template
	static    fs.FS
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Chat == nil || opts.Auth == nil {
		return nil, domain.ConfigError("web server needs a chat service and an authenticator", nil)
	}
	if opts.Logger == nil {
		opts.Logger = observability.Nop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.AppName == "" {
		opts.AppName = "VQA Chatbot"
	}

	page, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}

	return &Server{
		chat:      opts.Chat,
		auth:      opts.Auth,
		logger:    opts.Logger.WithOperation("web"),
		appName:   opts.AppName,
		maxUpload: opts.MaxUploadBytes,
		timeout:   opts.RequestTimeout,
		markdown:  NewMarkdown(),
		page:      page,
		static:    static,
	}, nil
}

// Handler returns the router with all routes configured.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestContext)
	r.Use(accessLog(s.logger))
	r.Use(chimiddleware.Recoverer)
	if s.timeout > 0 {
		r.Use(chimiddleware.Timeout(s.timeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"l3vision"}`))
	})

	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.static))))

	r.Get("/login", s.auth.LoginHandler)
	r.Get("/oauth2callback", s.auth.CallbackHandler)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/", s.handleIndex)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/clear", s.handleClear)
		r.Post("/settings", s.handleSettings)

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/models", s.handleModels)
			r.Get("/history", s.handleHistory)
			r.Post("/ask", s.handleAsk)
		})
	})

	return r
}

// upload is one parsed multipart chat submission.
type upload struct {
	name     string
	mimeType string
	data     []byte
	prompt   string
}

var errUploadTooLarge = errors.New("upload too large")

// readUpload parses the multipart form. A missing file yields empty data,
// which the chat service reports as a validation error.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	if r.ContentLength > s.maxUpload {
		return nil, errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, errUploadTooLarge
		}
		return nil, domain.ValidationError("The upload could not be read.", err)
	}
	defer r.MultipartForm.RemoveAll()

	up := &upload{prompt: r.FormValue("prompt")}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return up, nil
	}
	if err != nil {
		return nil, domain.ValidationError("The upload could not be read.", err)
	}
	defer file.Close()

	up.data, err = io.ReadAll(file)
	if err != nil {
		return nil, domain.IOError("read upload", err)
	}
	up.name = header.Filename
	up.mimeType = header.Header.Get("Content-Type")
	return up, nil
}

func (s *Server) uploadLimitMessage() string {
	return fmt.Sprintf("The upload exceeds the %dMB limit.", s.maxUpload>>20)
}

// statusFor maps a domain error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch domain.TypeOf(err) {
	case domain.ErrorTypeValidation:
		return http.StatusBadRequest
	case domain.ErrorTypeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.ErrorTypeEmptyDocument:
		return http.StatusUnprocessableEntity
	case domain.ErrorTypePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.ErrorTypeRateLimited:
		return http.StatusTooManyRequests
	case domain.ErrorTypeCollaboratorFailure, domain.ErrorTypeAPI:
		return http.StatusBadGateway
	case domain.ErrorTypeAuth:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the one message shown for a failed request.
func (s *Server) userMessage(err error) string {
	if errors.Is(err, errUploadTooLarge) {
		return s.uploadLimitMessage()
	}
	return domain.UserMessage(err)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Int("status", status).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	s.writeJSON(w, status, resp)
}

func identity(r *http.Request) *auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
