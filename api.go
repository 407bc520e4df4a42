package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"aboutcue/server/store"
)

// MaxImageSize caps cue image uploads.
const MaxImageSize = 10 * 1024 * 1024

// Version is the current server version. Set at build time via -ldflags.
var Version = "0.1.0-dev"

// APIServer provides the REST surface the browser UI talks to, plus the
// WebSocket event feed. It never touches protocol state directly; everything
// goes through the engine and store.
type APIServer struct {
	engine     *Engine
	hub        *EventHub
	echo       *echo.Echo
	uploadsDir string
}

// NewAPIServer constructs an APIServer and registers all routes.
// uploadsDir is where cue images are stored on disk.
func NewAPIServer(engine *Engine, hub *EventHub, uploadsDir string) *APIServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[api] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &APIServer{engine: engine, hub: hub, echo: e, uploadsDir: uploadsDir}
	s.registerRoutes()
	return s
}

func (s *APIServer) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/version", s.handleVersion)
	s.echo.GET("/api/status", s.handleStatus)

	s.echo.GET("/api/cues", s.handleGetCues)
	s.echo.PUT("/api/cues/annotation", s.handleAnnotate)
	s.echo.POST("/api/cues/:list/:number/image", s.handleUploadImage)
	s.echo.GET("/api/images/:name", s.handleGetImage)

	s.echo.POST("/api/connect", s.handleConnect)
	s.echo.POST("/api/disconnect", s.handleDisconnect)
	s.echo.POST("/api/refresh", s.handleRefresh)

	s.echo.GET("/api/shows", s.handleListShows)
	s.echo.POST("/api/shows/switch", s.handleSwitchShow)
	s.echo.GET("/api/shows/notes", s.handleGetShowNotes)
	s.echo.PUT("/api/shows/notes", s.handlePutShowNotes)

	s.echo.GET("/api/timings", s.handleGetTimings)
	s.echo.POST("/api/timings/recording", s.handleRecording)
	s.echo.DELETE("/api/timings", s.handleClearTimings)

	s.echo.GET("/api/scenes", s.handleGetScenes)
	s.echo.PUT("/api/scenes", s.handlePutScene)

	s.echo.GET("/api/tags/colors", s.handleGetTagColors)
	s.echo.PUT("/api/tags/colors", s.handlePutTagColor)

	s.echo.GET("/api/settings", s.handleGetSettings)
	s.echo.PUT("/api/settings", s.handlePutSettings)

	s.echo.GET("/ws", func(c echo.Context) error {
		s.hub.Handle(c.Response(), c.Request())
		return nil
	})
}

// Run starts the Echo HTTP server on addr and blocks until ctx is cancelled.
func (s *APIServer) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[api] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[api] shutdown: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Health, version, status
// ---------------------------------------------------------------------------

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *APIServer) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: s.hub.ClientCount(),
	})
}

// VersionResponse is the payload for GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}

func (s *APIServer) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, VersionResponse{Version: Version})
}

func (s *APIServer) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Status())
}

// ---------------------------------------------------------------------------
// Cues
// ---------------------------------------------------------------------------

func (s *APIServer) handleGetCues(c echo.Context) error {
	cues := s.engine.Store().Cues()
	if cues == nil {
		cues = []store.Cue{}
	}
	return c.JSON(http.StatusOK, cues)
}

// AnnotationRequest is the body for PUT /api/cues/annotation. Absent fields
// are left alone.
type AnnotationRequest struct {
	CueList   int       `json:"cueList"`
	CueNumber string    `json:"cueNumber"`
	Part      int       `json:"partNumber"`
	Notes     *string   `json:"notes"`
	Color     *string   `json:"color"`
	Tags      *[]string `json:"tags"`
	Page      *string   `json:"page"`
}

func (s *APIServer) handleAnnotate(c echo.Context) error {
	var req AnnotationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CueNumber == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "cueNumber is required")
	}

	k := store.Key{List: req.CueList, Number: req.CueNumber, Part: req.Part}
	err := s.engine.Store().Annotate(k, store.Annotation{
		Notes: req.Notes,
		Color: req.Color,
		Tags:  req.Tags,
		Page:  req.Page,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	// User edits must be durable before the response.
	if err := s.engine.Store().PersistNow(); err != nil {
		log.Printf("[api] persist annotation: %v", err)
	}
	s.hub.Broadcast("cues", nil)
	return c.NoContent(http.StatusNoContent)
}

// UploadImageResponse is the payload for POST /api/cues/:list/:number/image.
type UploadImageResponse struct {
	ImagePath string `json:"imagePath"`
}

func (s *APIServer) handleUploadImage(c echo.Context) error {
	list, err := strconv.Atoi(c.Param("list"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid cue list")
	}
	number := c.Param("number")
	part, _ := strconv.Atoi(c.QueryParam("part"))

	// Limit request body to the image cap plus form overhead.
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, MaxImageSize+1024)

	file, header, err := c.Request().FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing or invalid file field")
	}
	defer file.Close()

	if header.Size > MaxImageSize {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("image exceeds %d MB limit", MaxImageSize/(1024*1024)))
	}

	// Generate a unique filename to avoid collisions.
	ext := filepath.Ext(header.Filename)
	diskName := uuid.New().String() + ext
	diskPath := filepath.Join(s.uploadsDir, diskName)

	dst, err := os.Create(diskPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create file")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(diskPath)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to write file")
	}

	k := store.Key{List: list, Number: number, Part: part}
	if err := s.engine.Store().SetImagePath(k, diskName); err != nil {
		os.Remove(diskPath)
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err := s.engine.Store().PersistNow(); err != nil {
		log.Printf("[api] persist image: %v", err)
	}

	s.hub.Broadcast("cues", nil)
	return c.JSON(http.StatusCreated, UploadImageResponse{ImagePath: diskName})
}

func (s *APIServer) handleGetImage(c echo.Context) error {
	name := filepath.Base(c.Param("name")) // no traversal
	path := filepath.Join(s.uploadsDir, name)
	if _, err := os.Stat(path); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "image not found")
	}
	return c.File(path)
}

// ---------------------------------------------------------------------------
// Connection control
// ---------------------------------------------------------------------------

// ConnectRequest optionally overrides the stored transport settings.
type ConnectRequest struct {
	IPAddress string `json:"ip_address"`
	Port      int    `json:"port"`
	Protocol  string `json:"protocol"`
}

func (s *APIServer) handleConnect(c echo.Context) error {
	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if req.IPAddress != "" || req.Port != 0 || req.Protocol != "" {
		settings := s.engine.Settings()
		if req.IPAddress != "" {
			settings.OSC.IPAddress = req.IPAddress
		}
		if req.Port != 0 {
			settings.OSC.Port = req.Port
		}
		if req.Protocol != "" {
			if req.Protocol != "tcp" && req.Protocol != "udp" {
				return echo.NewHTTPError(http.StatusBadRequest, "protocol must be tcp or udp")
			}
			settings.OSC.Protocol = req.Protocol
		}
		if err := s.engine.UpdateSettings(settings); err != nil {
			log.Printf("[api] save settings: %v", err)
		}
	}

	if err := s.engine.Connect(); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIServer) handleDisconnect(c echo.Context) error {
	s.engine.Disconnect()
	return c.NoContent(http.StatusNoContent)
}

// RefreshRequest selects one list; zero means every discovered list.
type RefreshRequest struct {
	CueList int `json:"cueList"`
}

func (s *APIServer) handleRefresh(c echo.Context) error {
	if !s.engine.Connected() {
		return echo.NewHTTPError(http.StatusConflict, "not connected")
	}
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.CueList > 0 {
		s.engine.RequestRefresh(req.CueList)
	} else {
		s.engine.RequestRefreshAll()
	}
	return c.NoContent(http.StatusAccepted)
}

// ---------------------------------------------------------------------------
// Shows
// ---------------------------------------------------------------------------

// ShowsResponse is the payload for GET /api/shows.
type ShowsResponse struct {
	Current string   `json:"current"`
	Shows   []string `json:"shows"`
}

func (s *APIServer) handleListShows(c echo.Context) error {
	shows, err := s.engine.Store().ListShows()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if shows == nil {
		shows = []string{}
	}
	return c.JSON(http.StatusOK, ShowsResponse{
		Current: s.engine.Store().ShowName(),
		Shows:   shows,
	})
}

// ShowSwitchRequest is the body for POST /api/shows/switch. Unknown names
// are created empty.
type ShowSwitchRequest struct {
	Name string `json:"name"`
}

func (s *APIServer) handleSwitchShow(c echo.Context) error {
	var req ShowSwitchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if err := s.engine.Store().SwitchShow(req.Name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	settings := s.engine.Settings()
	settings.LastShowName = req.Name
	if err := s.engine.UpdateSettings(settings); err != nil {
		log.Printf("[api] save settings: %v", err)
	}

	s.hub.Broadcast("show", map[string]interface{}{"showName": req.Name})
	s.hub.Broadcast("cues", nil)
	return c.NoContent(http.StatusNoContent)
}

// ShowNotesDoc is the payload for GET and PUT /api/shows/notes.
type ShowNotesDoc struct {
	Notes string `json:"notes"`
}

func (s *APIServer) handleGetShowNotes(c echo.Context) error {
	return c.JSON(http.StatusOK, ShowNotesDoc{Notes: s.engine.Store().ShowNotes()})
}

func (s *APIServer) handlePutShowNotes(c echo.Context) error {
	var req ShowNotesDoc
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.engine.Store().SetShowNotes(req.Notes)
	if err := s.engine.Store().PersistNow(); err != nil {
		log.Printf("[api] persist show notes: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Timings
// ---------------------------------------------------------------------------

func (s *APIServer) handleGetTimings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Store().Timings())
}

// RecordingRequest is the body for POST /api/timings/recording.
type RecordingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *APIServer) handleRecording(c echo.Context) error {
	var req RecordingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.engine.SetRecording(req.Enabled)
	return c.NoContent(http.StatusNoContent)
}

func (s *APIServer) handleClearTimings(c echo.Context) error {
	s.engine.ClearTimings()
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Scenes and tag colors
// ---------------------------------------------------------------------------

func (s *APIServer) handleGetScenes(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Store().Scenes())
}

// SceneRequest is the body for PUT /api/scenes.
type SceneRequest struct {
	Name  string `json:"name"`
	Notes string `json:"notes"`
	Color string `json:"color"`
}

func (s *APIServer) handlePutScene(c echo.Context) error {
	var req SceneRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if err := s.engine.Store().SetScene(req.Name, store.SceneMeta{Notes: req.Notes, Color: req.Color}); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.engine.Store().PersistNow(); err != nil {
		log.Printf("[api] persist scene: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *APIServer) handleGetTagColors(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Store().TagColors())
}

// TagColorRequest is the body for PUT /api/tags/colors. An empty color
// removes the mapping.
type TagColorRequest struct {
	Tag   string `json:"tag"`
	Color string `json:"color"`
}

func (s *APIServer) handlePutTagColor(c echo.Context) error {
	var req TagColorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Tag == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tag is required")
	}
	if err := s.engine.Store().SetTagColor(req.Tag, req.Color); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.engine.Store().PersistNow(); err != nil {
		log.Printf("[api] persist tag colors: %v", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *APIServer) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Settings())
}

func (s *APIServer) handlePutSettings(c echo.Context) error {
	var req store.Settings
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.OSC.Protocol != "tcp" && req.OSC.Protocol != "udp" {
		return echo.NewHTTPError(http.StatusBadRequest, "protocol must be tcp or udp")
	}
	if err := s.engine.UpdateSettings(req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// jsonErrorHandler ensures all error responses have a consistent JSON body:
//
//	{"error": "message"}
//
// This replaces Echo's default handler which varies between text and JSON.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
