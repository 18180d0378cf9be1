package signal

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/app"
	"github.com/dkeye/costudy/internal/config"
	"github.com/dkeye/costudy/internal/domain"
)

// SessionKey is where the router's middleware stores the session token.
const SessionKey = "sid"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Reg     *app.Registry
	Hub     *Hub
	cfg     *config.Config
	limiter *JoinRateLimiter
}

func NewController(reg *app.Registry, hub *Hub, cfg *config.Config) *Controller {
	return &Controller{
		Reg:     reg,
		Hub:     hub,
		cfg:     cfg,
		limiter: NewJoinRateLimiter(cfg.JoinLimit, cfg.JoinInterval),
	}
}

// HandleSignal upgrades the request and runs the connection's pumps.
// The session token is read from the cookie session the router
// middleware established; it may be empty and the identity resolver
// degrades accordingly.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	sessionToken, _ := sessions.Default(c).Get(SessionKey).(string)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	connID := domain.ConnID(uuid.NewString())
	conn := newConn(ws)
	ctl.Hub.add(connID, conn)
	log.Info().Str("module", "signal").Str("conn", string(connID)).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		defer cancel()
		ctl.writePump(ctx, conn)
	}()
	go func() {
		defer cancel()
		ctl.readPump(ctx, connID, sessionToken, conn)
	}()
}
