package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"poll-api/internal/service"
)

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	jwtSvc *service.JWTService,
	requestTimeout time.Duration,
	corsOrigins []string,
	userH *UserHandler,
	pollH *PollHandler,
) *gin.Engine {
	configureValidator(logger)

	r := gin.New()

	// Middlewares basicos: logging, recovery, CORS, JSON content-type y timeout por request.
	r.Use(
		zapLoggerMiddleware(logger),
		gin.Recovery(),
		corsMiddleware(corsOrigins),
		jsonContentTypeMiddleware(),
		requestTimeoutMiddleware(requestTimeout),
	)

	r.GET("/", welcome)

	r.POST("/signup", userH.SignUp)
	r.POST("/verify/:id", userH.Verify)
	r.GET("/verify/:id/:token", userH.VerifyLink)
	r.GET("/resend-otp/:id", userH.ResendOTP)
	r.POST("/login", userH.Login)
	r.POST("/forgot", userH.ForgotPassword)
	r.POST("/reset-user/:userId", userH.ResetPassword)
	r.POST("/signout", JWTAuthMiddleware(jwtSvc), userH.SignOut)

	api := r.Group("/api")
	api.GET("/polls/viewall", pollH.ListPolls)
	api.GET("/polls/:id", pollH.GetPoll)
	api.GET("/polls/:id/winner", pollH.Winner)
	api.POST("/polls/:id/vote", pollH.CastVote)
	api.POST("/verify-voters/:pollId", pollH.ConfirmVote)
	api.GET("/verify-voters/:pollId/:token", pollH.ConfirmVoteLink)

	protected := api.Group("", JWTAuthMiddleware(jwtSvc))
	protected.POST("/polls", pollH.CreatePoll)
	protected.DELETE("/polls/:id", pollH.DeletePoll)
	protected.DELETE("/polls/:id/options/:optionId", pollH.RemoveOption)

	return r
}

func welcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the polling API"})
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

// corsMiddleware responde los preflight OPTIONS; "*" (o lista vacia) abre la API a cualquier origen.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			allowed = nil
			break
		}
		if o != "" {
			allowed = append(allowed, o)
		}
	}
	if len(allowed) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowed
	}
	return cors.New(cfg)
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

// requestTimeoutMiddleware acota el contexto de cada request; stores y servicios lo respetan.
func requestTimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// configureValidator registra en el validator de gin los nombres JSON y los tags phone/strongpassword.
func configureValidator(logger *zap.Logger) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(service.JSONFieldName)
	if err := service.RegisterValidators(v); err != nil {
		logger.Error("register validators", zap.Error(err))
	}
}
