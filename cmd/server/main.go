package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dialworks/leadagent/internal/api/handlers"
	"github.com/dialworks/leadagent/internal/dialer"
	"github.com/dialworks/leadagent/internal/recorder"
	"github.com/dialworks/leadagent/internal/store"
	"github.com/dialworks/leadagent/pkg/env"
	"github.com/dialworks/leadagent/pkg/logger"
	"github.com/dialworks/leadagent/pkg/middleware"
	"github.com/dialworks/leadagent/pkg/otel"
	"github.com/dialworks/leadagent/pkg/storage"
	"github.com/dialworks/leadagent/pkg/transcribe"
	"github.com/dialworks/leadagent/pkg/twilio"
)

type Server struct {
	cfg         *env.Config
	redisClient *redis.Client
	handler     *handlers.Handler
}

func main() {
	cfg, err := env.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.AppEnv); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.OTELEnabled {
		shutdown, err := otel.InitTracing("leadagent", "1.0.0", cfg.OTELEndpoint)
		if err != nil {
			logger.Log.Warn("Failed to initialize OpenTelemetry", zap.Error(err))
		} else {
			defer shutdown()
			logger.Log.Info("OpenTelemetry tracing enabled", zap.String("endpoint", cfg.OTELEndpoint))
		}
	}

	logger.Log.Info("Starting lead agent server",
		zap.String("env", cfg.AppEnv),
		zap.String("port", cfg.AppPort),
	)

	// Redis backs rate limiting and idempotency
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Log.Fatal("Failed to parse Redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	leadStore, err := store.Open(cfg.DatabasePath, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to open lead store", zap.Error(err))
	}
	defer func() {
		if err := leadStore.Close(); err != nil {
			logger.Log.Warn("Failed to close lead store", zap.Error(err))
		}
	}()

	twilioClient := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken)

	storageDriver, err := storage.NewDriver("local", cfg.RecordingsPath)
	if err != nil {
		logger.Log.Fatal("Failed to create storage driver", zap.Error(err))
	}
	rec := recorder.New(storageDriver, logger.Log)

	var transcriber transcribe.Transcriber
	if cfg.TranscribeCalls {
		transcriber, err = transcribe.New(
			cfg.TranscriberDriver,
			cfg.OpenAIApiKey,
			cfg.WhisperModel,
			cfg.DeepgramApiKey,
			60*time.Second,
			logger.Log,
		)
		if err != nil {
			logger.Log.Fatal("Failed to create transcriber", zap.Error(err))
		}
		logger.Log.Info("Transcriber enabled", zap.String("driver", cfg.TranscriberDriver))
	}

	d := dialer.New(twilioClient, leadStore, dialer.Config{
		FromNumber:        cfg.TwilioFromNumber,
		CallbackURL:       cfg.PublicBaseURL + "/voice/answer",
		StatusCallbackURL: cfg.PublicBaseURL + "/webhooks/call-status",
		Delay:             time.Duration(cfg.DialDelaySec) * time.Second,
	}, logger.Log)

	apiHandler := handlers.NewHandler(cfg, redisClient, leadStore, d, rec, transcriber)

	server := &Server{
		cfg:         cfg,
		redisClient: redisClient,
		handler:     apiHandler,
	}

	router := server.setupRouter()

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

func (s *Server) setupRouter() *gin.Engine {
	if s.cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.TraceMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(4 << 20)) // CSV imports can be large
	router.Use(middleware.Metrics())

	if s.cfg.OTELEnabled {
		router.Use(otel.GinMiddleware())
	}

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("[%s] %s %s %d %s\n",
			param.TimeStamp.Format(time.RFC3339),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
		)
	}))

	corsConfig := cors.DefaultConfig()
	if s.cfg.CORSAllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = []string{s.cfg.CORSAllowedOrigins}
	}
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	rateLimiter := middleware.NewRateLimiter(s.redisClient, s.cfg.APIRateLimitRPM)

	router.GET("/health", s.handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.IdempotencyMiddleware(s.redisClient))
	api.Use(rateLimiter.Middleware())
	{
		leads := api.Group("/leads")
		{
			leads.POST("/import", s.handler.ImportLeads)
			leads.GET("", s.handler.ListLeads)
			leads.GET("/:phone", middleware.ValidatePhoneParam("phone"), s.handler.GetLead)
			leads.GET("/:phone/conversation", middleware.ValidatePhoneParam("phone"), s.handler.GetConversation)
		}

		calls := api.Group("/calls")
		{
			calls.POST("", s.handler.CreateCall)
			calls.POST("/bulk", s.handler.BulkCalls)
			calls.GET("/:call_sid", s.handler.GetCall)
		}

		recordings := api.Group("/recordings")
		{
			recordings.GET("/:stream_id", middleware.ValidateStreamIDParam("stream_id"), s.handler.GetRecording)
		}
	}

	// Telephony provider endpoints (public, HMAC verified where applicable)
	router.POST("/webhooks/call-status", s.handler.CallStatusWebhook)
	router.GET("/voice/answer", s.handler.VoiceAnswer)
	router.POST("/voice/answer", s.handler.VoiceAnswer)
	router.GET("/media-stream", s.handler.MediaStream)

	return router
}
