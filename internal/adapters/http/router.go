package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"peerchat/internal/adapters/ws"
	"peerchat/internal/app/orch"
	"peerchat/internal/config"
	"peerchat/internal/storage"
)

// ClientTokenMiddleware gives each browser a stable client cookie. It is
// not the identity token; identity arrives over the socket via register.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, dir *storage.Directory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PeerchatSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := ws.NewController(o, cfg)
	api := r.Group("/api")

	api.GET("/ws/chat", func(c *gin.Context) {
		ctrl.HandleChat(ctx, c)
	})

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Read-only channel listing for clients populating their sidebar.
	// Channel CRUD itself lives in the management plane.
	api.GET("/servers/:server/channels", func(c *gin.Context) {
		channels, err := dir.List(c.Request.Context(), c.Param("server"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage failure"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"channels": channels})
	})

	return r
}
