package http

import (
	"context"
	"time"

	"github.com/geocoder89/pollhub/internal/auth"
	"github.com/geocoder89/pollhub/internal/cache"
	"github.com/geocoder89/pollhub/internal/config"
	"github.com/geocoder89/pollhub/internal/domain/user"
	"github.com/geocoder89/pollhub/internal/http/handlers"
	"github.com/geocoder89/pollhub/internal/http/middlewares"
	"github.com/geocoder89/pollhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Deps carries everything the router needs so tests can swap stores without
// touching wiring.
type Deps struct {
	Cfg config.Config
	JWT *auth.Manager

	Users   handlers.AuthUserStore
	UserMgr handlers.UserStore
	Counter handlers.UserCounter
	Polls   handlers.PollStore
	Votes   handlers.VoteStore
	Refresh handlers.RefreshTokenStore

	Prom *observability.Prom

	// Ping reports storage readiness; nil means always ready.
	Ping func(ctx context.Context) error
}

func NewRouter(d Deps) *gin.Engine {
	if d.Cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Cfg.AllowedOrigins))
	r.Use(middlewares.RequireJSON())
	r.Use(middlewares.MaxBodyBytes(d.Cfg.MaxBodyBytes))

	if d.Cfg.OtelEnabled {
		r.Use(otelgin.Middleware("pollhub"))
	}

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	limiter := middlewares.NewRateLimiter(d.Cfg.RateLimitPerMinute, time.Minute)

	// health

	h := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	// wire up handlers

	authMw := middlewares.NewAuthMiddleware(d.JWT)

	listCache := cache.New(time.Duration(d.Cfg.CacheTTLSeconds) * time.Second)

	authHandler := handlers.NewAuthHandler(d.Users, d.JWT, d.Refresh, d.Cfg)
	pollsHandler := handlers.NewPollsHandler(d.Polls, d.Counter, listCache)
	votesHandler := handlers.NewVotesHandler(d.Votes, d.Polls, listCache, d.Prom)
	usersHandler := handlers.NewUsersHandler(d.UserMgr)

	// Routes

	authGroup := r.Group("/auth")
	authGroup.Use(limiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	polls := r.Group("/polls")
	polls.Use(authMw.RequireAuth(), limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	{
		polls.GET("", pollsHandler.ListPolls)
		polls.POST("", pollsHandler.CreatePoll)
		polls.GET("/my-votes", votesHandler.MyVotes)
		polls.GET("/:id", pollsHandler.GetPollById)
		polls.PATCH("/:id", pollsHandler.UpdatePoll)
		polls.DELETE("/:id", pollsHandler.DeletePoll)
		polls.POST("/:id/vote", votesHandler.CastVote)
	}

	users := r.Group("/users")
	users.Use(authMw.RequireAuth(), limiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP))
	{
		users.GET("/profile", usersHandler.Profile)

		admin := users.Group("")
		admin.Use(authMw.RequireRole(user.RoleAdmin))
		{
			admin.GET("", usersHandler.ListUsers)
			admin.GET("/:id", usersHandler.GetUserById)
			admin.PATCH("/:id", usersHandler.UpdateUser)
			admin.DELETE("/:id", usersHandler.DeleteUser)
		}
	}

	return r
}
