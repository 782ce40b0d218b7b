package ws

import (
	"net/http"
	"net/url"
	"strings"

	"TokenPulse/internal/service/realtime"
	xhttp "TokenPulse/pkg/http"
	xlogger "TokenPulse/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const defaultReadLimit = 64 << 10

// Handler upgrades GET requests on its path into broadcaster clients.
type Handler struct {
	logger    *xlogger.Logger
	b         *realtime.Broadcaster
	path      string
	readLimit int64
	upgrader  websocket.Upgrader
}

// NewHandler builds the upgrade endpoint. origins follows the CORS list;
// "*" or an empty list accepts any origin.
func NewHandler(logger *xlogger.Logger, b *realtime.Broadcaster, path string, origins []string) *Handler {
	if path == "" {
		path = "/ws"
	}
	return &Handler{
		logger:    logger,
		b:         b,
		path:      path,
		readLimit: defaultReadLimit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(h.path, h.Upgrade)
}

// Upgrade refuses with 503 before the handshake when the broadcaster is at
// capacity, then blocks for the life of the connection.
func (h *Handler) Upgrade(c echo.Context) error {
	if h.b.Full() {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("too many websocket connections"))
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.logger.Warn("ws.upgrade_failed", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
		return nil
	}
	conn.SetReadLimit(h.readLimit)

	if err := h.b.Serve(conn); err != nil {
		h.logger.Warn("ws.rejected", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
	}
	return nil
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
