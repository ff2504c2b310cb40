package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/khushidubeyokok/AMD/internal/content"
	"github.com/khushidubeyokok/AMD/internal/logger"
	"github.com/khushidubeyokok/AMD/internal/progress"
	"github.com/khushidubeyokok/AMD/internal/session"
)

// Server exposes session management over HTTP and the voice bridge over
// websockets.
type Server struct {
	echo     *echo.Echo
	manager  *Manager
	tracker  progress.Tracker
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// New builds the configured Echo server with all routes registered.
func New(manager *Manager, tracker progress.Tracker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{
		echo:    e,
		manager: manager,
		tracker: tracker,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser demo clients connect from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	e.GET("/healthz", s.health)
	e.GET("/api/subjects", s.subjects)
	e.POST("/api/sessions", s.createSession)
	e.GET("/api/sessions/:id", s.getSession)
	e.DELETE("/api/sessions/:id", s.deleteSession)
	e.GET("/api/progress/last", s.lastProgress)
	e.GET("/ws/sessions/:id", s.attachSession)
	return s
}

// Start runs the server until Shutdown.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

// Shutdown drains HTTP and tears down live sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.manager.Close()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) subjects(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"subjects": session.DefaultSubjects})
}

type createSessionRequest struct {
	Subject string `json:"subject"`
	Chapter string `json:"chapter"`
}

func (s *Server) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Subject == "" || req.Chapter == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject and chapter are required")
	}
	mg, err := s.manager.Create(req.Subject, req.Chapter)
	if err != nil {
		if errors.Is(err, content.ErrUnavailable) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		}
		s.log.Error("session create failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not create session")
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": mg.Session.ID()})
}

type conversationEntry struct {
	ID      string    `json:"id"`
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

type sessionSnapshot struct {
	ID            string              `json:"id"`
	Phase         string              `json:"phase"`
	Subject       string              `json:"subject"`
	Chapter       string              `json:"chapter"`
	Title         string              `json:"title"`
	SectionIndex  int                 `json:"sectionIndex"`
	QuestionIndex int                 `json:"questionIndex"`
	Sections      []content.Section   `json:"sections"`
	Questions     []content.Question  `json:"questions"`
	Conversation  []conversationEntry `json:"conversation"`
	Result        *session.Result     `json:"result,omitempty"`
}

func (s *Server) getSession(c echo.Context) error {
	mg, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	sess := mg.Session
	ch := sess.Chapter()
	conv := sess.Conversation()
	entries := make([]conversationEntry, len(conv))
	for i, e := range conv {
		entries[i] = conversationEntry{ID: e.ID, Speaker: string(e.Speaker), Text: e.Text, At: e.At}
	}
	snap := sessionSnapshot{
		ID:            sess.ID(),
		Phase:         sess.Phase().String(),
		Subject:       ch.Subject,
		Chapter:       ch.Chapter,
		Title:         ch.Title,
		SectionIndex:  sess.SectionIndex(),
		QuestionIndex: sess.QuestionIndex(),
		Sections:      ch.Sections,
		Questions:     sess.Questions(),
		Conversation:  entries,
	}
	if res, ok := sess.AssessmentResult(); ok {
		snap.Result = &res
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) deleteSession(c echo.Context) error {
	if err := s.manager.Delete(c.Param("id")); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) lastProgress(c echo.Context) error {
	if s.tracker == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no progress recorded")
	}
	last, ok, err := s.tracker.Last(c.Request().Context())
	if err != nil {
		s.log.Error("progress lookup failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "progress lookup failed")
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no progress recorded")
	}
	return c.JSON(http.StatusOK, last)
}

func (s *Server) attachSession(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.manager.Get(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	if err := s.manager.Attach(id, conn); err != nil {
		_ = conn.Close()
	}
	return nil
}
