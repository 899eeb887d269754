package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/config"
	"github.com/vovakirdan/wirechat-rooms/internal/core"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer builds the HTTP server. WebSocket upgrades are served by the
// stdlib mux directly, every other path by the gin router.
func NewServer(dispatcher *core.Dispatcher, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("GET /api/rooms/{room}/websocket", NewWSHandler(dispatcher, cfg, logger))
	mux.Handle("/", NewRouter(dispatcher, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter registers the REST routes on a gin engine.
func NewRouter(dispatcher *core.Dispatcher, logger *zerolog.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), LoggerMiddleware(logger))

	rooms := NewRoomHandlers(dispatcher, logger)

	engine.GET("/health", healthHandler)

	api := engine.Group("/api/rooms")
	api.GET("", rooms.ListActive)
	api.GET("/:room/history", rooms.History)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, ErrorResponse{Error: "not found"})
	})

	return engine
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
