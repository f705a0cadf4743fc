package handlers

import (
	"net/http"

	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// StreamHandlers upgrades dashboard clients onto the conversion feed
type StreamHandlers struct {
	broadcaster *messaging.ConversionBroadcaster
	upgrader    websocket.Upgrader
	logger      *logging.ChanneledLogger
}

// NewStreamHandlers creates the feed handler. Browser origins outside
// allowedOrigins are refused; requests without an Origin header are
// accepted.
func NewStreamHandlers(broadcaster *messaging.ConversionBroadcaster, allowedOrigins []string, logger *logging.ChanneledLogger) *StreamHandlers {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &StreamHandlers{
		broadcaster: broadcaster,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// HandleStream handles GET /api/v1/attribution/stream
func (h *StreamHandlers) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		h.logger.Stream().Warn("Websocket upgrade failed", "error", err.Error(), "remoteAddr", c.ClientIP())
		return
	}

	h.logger.Stream().Info("Stream client connected", "remoteAddr", c.ClientIP())
	h.broadcaster.ServeClient(conn)
	h.logger.Stream().Info("Stream client disconnected", "remoteAddr", c.ClientIP())
}
