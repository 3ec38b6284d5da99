package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/WatchParty/internal/adapters/signal"
	"github.com/dkeye/WatchParty/internal/app/orch"
	"github.com/dkeye/WatchParty/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenCookie = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a long-lived token kept in
// the session cookie. It only shows up in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientTokenCookie).(string)
		if token == "" {
			token = genClientToken()
			sess.Set(clientTokenCookie, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(signal.ClientTokenKey, token)
		c.Next()
	}
}

func trustedPlatform(name string) string {
	switch strings.ToLower(name) {
	case "":
		return ""
	case "cloudflare":
		return gin.PlatformCloudflare
	case "google", "appengine":
		return gin.PlatformGoogleAppEngine
	default:
		return name
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.TrustedPlatform = trustedPlatform(cfg.TrustedPlatform)
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Strs("trusted_proxies", cfg.TrustedProxies).
			Msg("invalid trusted_proxies, forwarded headers are ignored")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteNoneMode, Secure: cfg.Mode == "release"})
	r.Use(sessions.Sessions("WatchPartySession", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       o.Rooms.Count(),
			"connections": o.Registry.Count(),
		})
	})

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.WS.ReadLimit,
		PingPeriod: cfg.WS.PingPeriod,
		PongWait:   cfg.WS.PongWait,
		WriteWait:  cfg.WS.WriteWait,
		SendBuffer: cfg.WS.SendBuffer,
	})
	ws := func(c *gin.Context) { ctrl.HandleSignal(ctx, c) }
	r.GET("/ws", ws)
	// Discord activities reach the backend through the /.proxy prefix.
	r.GET("/.proxy/ws", ws)

	if cfg.Admin.JWTSecret != "" {
		admin := r.Group("/api/admin", AdminAuth(cfg.Admin.JWTSecret))
		RegisterAdmin(admin, o)
	} else {
		log.Warn().Str("module", "adapters.http").Msg("admin.jwt_secret is empty, admin api disabled")
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
