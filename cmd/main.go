package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/vmphat/bandlab/config"
	"github.com/vmphat/bandlab/database"
	_ "github.com/vmphat/bandlab/docs" // Swagger docs
	adminctrl "github.com/vmphat/bandlab/internal/controller/admin"
	learnerctrl "github.com/vmphat/bandlab/internal/controller/learner"
	"github.com/vmphat/bandlab/internal/logger"
	"github.com/vmphat/bandlab/internal/model"
	"github.com/vmphat/bandlab/internal/repository"
	"github.com/vmphat/bandlab/internal/service"
	"github.com/vmphat/bandlab/internal/worker"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title IELTS Practice Scoring API
// @version 1.0
// @description Practice attempt lifecycle and automated AI scoring pipeline for IELTS writing and speaking.
// @contact.name API Support
// @contact.email support@example.com
// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
func main() {
	logger.Init()

	app := fx.New(
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			NewGinEngine,
		),

		fx.Provide(
			repository.NewPromptRepository,
			repository.NewAttemptRepository,
			repository.NewScoringJobRepository,
			repository.NewScoreRepository,
		),

		fx.Provide(
			service.NewBandConverterService,
			service.NewScoringClient,
			service.NewPromptService,
			service.NewAttemptService,
			// The queue drives the attempt state machine through the narrow
			// AttemptMarker slice of AttemptService.
			func(attempts service.AttemptService) service.AttemptMarker { return attempts },
			service.NewQueueService,
			service.NewAggregatorService,
		),

		fx.Provide(
			learnerctrl.NewAttemptController,
			adminctrl.NewQueueController,
			adminctrl.NewPromptController,
			worker.New,
		),

		fx.Invoke(AutoMigrateDB),
		fx.Invoke(RegisterRoutesAndStartServer),
		fx.Invoke(StartBackgroundWorker),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
}

func NewGinEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RequestID())
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		log.Info().
			Str("request_id", param.Request.Header.Get(requestIDHeader)).
			Str("client_ip", param.ClientIP).
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status_code", param.StatusCode).
			Dur("latency", param.Latency).
			Str("error_message", param.ErrorMessage).
			Msg("gin_request")
		return ""
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", requestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id so a submission can be traced
// through the attempt, job and scoring logs.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Request.Header.Set(requestIDHeader, id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	router *gin.Engine,
	cfg *config.Config,
	attemptCtrl *learnerctrl.AttemptController,
	queueCtrl *adminctrl.QueueController,
	promptCtrl *adminctrl.PromptController,
) {
	adminAPIGroup := router.Group("/api/v1/admin")
	{
		adminAPIGroup.POST("/prompts", promptCtrl.CreatePrompt)

		jobsGroup := adminAPIGroup.Group("/jobs")
		jobsGroup.POST("/process", queueCtrl.ProcessJobs)
		jobsGroup.POST("/reconcile", queueCtrl.Reconcile)
		jobsGroup.GET("", queueCtrl.ListJobs)
		jobsGroup.GET("/stats", queueCtrl.QueueStats)

		adminAPIGroup.POST("/attempts/:attempt_id/teacher-evaluation", queueCtrl.MarkTeacherEvaluated)
	}

	learnerAPIGroup := router.Group("/api/v1")
	{
		learnerAPIGroup.GET("/prompts", attemptCtrl.GetAllPrompts)
		learnerAPIGroup.GET("/prompts/:prompt_id", attemptCtrl.GetPrompt)

		learnerAPIGroup.POST("/attempts", attemptCtrl.StartAttempt)
		learnerAPIGroup.PUT("/attempts/:attempt_id/content", attemptCtrl.UpdateContent)
		learnerAPIGroup.POST("/attempts/:attempt_id/submit", attemptCtrl.SubmitAttempt)
		learnerAPIGroup.POST("/attempts/:attempt_id/rescore", attemptCtrl.RescoreAttempt)
		learnerAPIGroup.GET("/attempts/:attempt_id", attemptCtrl.GetAttempt)
		learnerAPIGroup.GET("/learners/:learner_id/attempts", attemptCtrl.GetLearnerAttempts)

		learnerAPIGroup.GET("/stats/bands", attemptCtrl.GetBandStats)
	}

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("Practice scoring API starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

// StartBackgroundWorker ties the queue drainer and orphan sweeper to the
// application lifecycle.
func StartBackgroundWorker(lc fx.Lifecycle, w *worker.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			w.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			w.Stop()
			return nil
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.Prompt{},
		&model.Attempt{},
		&model.ScoringJob{},
		&model.Score{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
