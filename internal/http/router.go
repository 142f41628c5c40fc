package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/service"
)

// HealthCheck verifica las dependencias del servicio (store, etc).
type HealthCheck func(ctx context.Context) error

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	userH *UserHandler,
	aiH *AIHandler,
	health HealthCheck,
) *gin.Engine {
	r := gin.New()

	r.Use(zapLoggerMiddleware(logger), gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "API is running...")
	})
	r.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protect := JWTAuthMiddleware(jwtSvc)

	auth := r.Group("/api/auth", jsonContentTypeMiddleware())
	auth.POST("/register", userH.Register)
	auth.POST("/login", userH.Login)
	auth.GET("/me", protect, userH.Me)
	auth.PUT("/updateprofile", protect, userH.UpdateProfile)
	auth.POST("/forgot-password", userH.ForgotPassword)
	auth.PUT("/reset-password/:resettoken", userH.ResetPassword)
	auth.POST("/refresh", userH.RefreshToken)
	auth.POST("/logout", userH.Logout)

	ai := r.Group("/api/ai", protect)
	ai.POST("/prompt", jsonContentTypeMiddleware(), aiH.CreatePrompt)
	ai.GET("/stream/:promptId", aiH.Stream)
	ai.GET("/history", jsonContentTypeMiddleware(), aiH.History)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
// El stream SSE no lo usa.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
