package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"Dreamy/core"
	"Dreamy/gallery"
	"Dreamy/lib/sl"
)

//go:embed templates/*
var embeddedFS embed.FS

const (
	ReadTimeout     = 15 * time.Second
	WriteTimeout    = 15 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 30 * time.Second

	// MaxRequestBodySize bounds the generate and clear forms
	MaxRequestBodySize = 64 * 1024
)

const (
	levelWarning = "warning"
	levelError   = "error"
	levelSuccess = "success"
)

// Server serves the single page UI
type Server struct {
	addr      string
	server    *http.Server
	templates *template.Template
	service   core.ImageService
	log       *slog.Logger
}

type sizeOption struct {
	Value    string
	Selected bool
}

type notice struct {
	Level string
	Text  string
}

type renderedImage struct {
	Index    int
	DataURI  template.URL
	FileName string
}

type pageData struct {
	Prompt          string
	Sizes           []sizeOption
	Count           int
	MinImages       int
	MaxImages       int
	MaxPromptLength int
	Notice          *notice
	Images          []renderedImage
}

func NewServer(addr string, service core.ImageService, log *slog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(embeddedFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	s := &Server{
		addr:      addr,
		templates: tmpl,
		service:   service,
		log:       log.With(sl.Module("web")),
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s, nil
}

// Handler returns the routes wrapped with the session middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /clear", s.handleClear)
	mux.HandleFunc("GET /images/{index}", s.handleImage)
	mux.HandleFunc("GET /ready", s.handleReady)
	return SessionMiddleware(mux)
}

// ListenAndServe blocks until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("web server listening", slog.String("addr", "http://"+s.addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.log.Info("web server stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sessionId := GetSessionID(r.Context())
	settings := s.service.Settings(sessionId)
	s.renderPage(w, sessionId, http.StatusOK, "", settings, nil)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionId := GetSessionID(r.Context())

	// generation outlives the server write timeout
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		s.log.Warn("parsing form", sl.Session(sessionId), sl.Err(err))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	req := requestFromForm(r)
	settings := core.Settings{Size: req.Size, Count: req.Count}.Normalize()

	_, err := s.service.Submit(r.Context(), sessionId, req)
	switch {
	case err == nil:
		s.renderPage(w, sessionId, http.StatusOK, req.Prompt, settings, nil)
	case core.IsWarning(err):
		s.renderPage(w, sessionId, http.StatusOK, req.Prompt, settings, &notice{Level: levelWarning, Text: core.UserMessage(err)})
	default:
		s.renderPage(w, sessionId, statusFor(err), req.Prompt, settings, &notice{Level: levelError, Text: core.UserMessage(err)})
	}
}

func requestFromForm(r *http.Request) core.GenerationRequest {
	// a malformed count becomes 0 and fails validation as out of range
	count, _ := strconv.Atoi(r.PostFormValue("count"))
	return core.GenerationRequest{
		Prompt: r.PostFormValue("prompt"),
		Size:   core.Size(r.PostFormValue("size")),
		Count:  count,
	}
}

// statusFor keeps provider failures at 200 since the page itself rendered
// fine; only failures of this service are reported as 500
func statusFor(err error) int {
	var se *core.ServiceError
	if errors.Is(err, core.ErrAuthentication) || errors.Is(err, core.ErrMalformedImage) || errors.As(err, &se) {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionId := GetSessionID(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	_ = r.ParseForm()
	prompt := r.PostFormValue("prompt")
	settings := s.service.Settings(sessionId)

	if err := s.service.Clear(sessionId); err != nil {
		s.log.Error("clearing images", sl.Session(sessionId), sl.Err(err))
		s.renderPage(w, sessionId, http.StatusInternalServerError, prompt, settings, &notice{Level: levelError, Text: core.UserMessage(err)})
		return
	}
	s.renderPage(w, sessionId, http.StatusOK, prompt, settings, &notice{Level: levelSuccess, Text: "Images cleared."})
}

// handleImage serves the raw bytes of the n-th image (1-based) as a download
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	sessionId := GetSessionID(r.Context())

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	images, err := s.service.Images(sessionId)
	if err != nil {
		s.log.Error("getting images", sl.Session(sessionId), sl.Err(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if index < 1 || index > len(images) {
		http.NotFound(w, r)
		return
	}

	img := images[index-1]
	contentType := img.ContentType()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gallery.FileName(index, contentType)))
	if _, err := w.Write(img); err != nil {
		s.log.Warn("writing image", sl.Session(sessionId), sl.Err(err))
	}
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) renderPage(w http.ResponseWriter, sessionId string, status int, prompt string, settings core.Settings, n *notice) {
	data := pageData{
		Prompt:          prompt,
		Count:           settings.Count,
		MinImages:       core.MinImages,
		MaxImages:       core.MaxImages,
		MaxPromptLength: core.MaxPromptLength,
		Notice:          n,
	}
	for _, size := range core.Sizes() {
		data.Sizes = append(data.Sizes, sizeOption{Value: string(size), Selected: size == settings.Size})
	}

	images, err := s.service.Images(sessionId)
	if err != nil {
		s.log.Error("getting images", sl.Session(sessionId), sl.Err(err))
		status = http.StatusInternalServerError
		data.Notice = &notice{Level: levelError, Text: core.UserMessage(err)}
	}
	for _, img := range gallery.Render(images) {
		data.Images = append(data.Images, renderedImage{
			Index: img.Index,
			// the payload is our own base64, safe to embed as a url
			DataURI:  template.URL(img.DataURI),
			FileName: img.FileName,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.log.Error("executing template", sl.Err(err))
	}
}
