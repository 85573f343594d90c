package v1

import (
	"go_agentos/api/v1/agent_versions"
	"go_agentos/api/v1/auth"
	"go_agentos/api/v1/evolution"
	"go_agentos/api/v1/middleware"
	"go_agentos/api/v1/system_logs"
	"go_agentos/internal/agentversion"
	iauth "go_agentos/internal/auth"
	"go_agentos/internal/config"
	evo "go_agentos/internal/evolution"
	"go_agentos/internal/httpx"
	"go_agentos/internal/vote"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries what the v1 handlers need
type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Tokens   *iauth.Tokens
	Versions *agentversion.Service
	Votes    *vote.Service
	Sweeper  *evo.Sweeper
	Logs     system_logs.Lister
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, d Deps) {
	versionsHandler := agent_versions.NewHandler(d.Versions, d.Votes)
	evolutionHandler := evolution.NewHandler(d.Sweeper)
	logsHandler := system_logs.NewHandler(d.Logs)

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(d.DB, d.Tokens))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(d.Tokens))
		{
			protected.GET("/me", meHandler)

			versionsGroup := protected.Group("/agent-versions")
			{
				versionsGroup.GET("", versionsHandler.List)
				versionsGroup.GET("/:id", versionsHandler.Get)
				versionsGroup.GET("/:id/my-vote", versionsHandler.MyVote)
				versionsGroup.GET("/:id/stats", versionsHandler.Stats)
				versionsGroup.POST("/create", versionsHandler.Create)
				versionsGroup.POST("/vote", versionsHandler.Vote)
				versionsGroup.POST("/xp", middleware.AdminRequired(), versionsHandler.AwardXP)
			}

			protected.POST("/evolution/sweep", evolutionHandler.Sweep)
			protected.GET("/system-logs", logsHandler.List)
		}
	}

	// Machine-to-machine routes for the external scheduler
	internal := r.Group("/internal/v1")
	internal.Use(middleware.APIKeyRequired(d.Config.CronAPIKey))
	{
		internal.POST("/evolution/sweep", evolutionHandler.SweepInternal)
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"uid":      c.GetInt(middleware.KeyUID),
		"username": c.GetString(middleware.KeyUsername),
		"role":     c.GetString(middleware.KeyRole),
		"tenantId": c.GetString(middleware.KeyTenantID),
	})
}
