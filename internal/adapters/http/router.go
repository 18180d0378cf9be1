package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/costudy/internal/adapters/signal"
	"github.com/dkeye/costudy/internal/config"
	"github.com/dkeye/costudy/internal/domain"
)

// SessionMiddleware mints a session token into the cookie session when
// the browser has none. The websocket handshake reads the same value,
// so the token survives page refreshes and grounds rejoin detection.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if v, _ := sess.Get(signal.SessionKey).(string); v == "" {
			sess.Set(signal.SessionKey, uuid.NewString())
			if err := sess.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(cfg.SessionCookie, store))
	r.Use(SessionMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.Static("/audio", cfg.AudioPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/rooms/:room", func(c *gin.Context) {
		code := c.Param("room")
		if domain.NormalizeRoomCode(code) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "room code missing"})
			return
		}
		snap, ok := ctl.Reg.Snapshot(code)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})

	return r
}
