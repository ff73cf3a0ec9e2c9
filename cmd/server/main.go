package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/screenpost/configs"
	"github.com/maheshrc27/screenpost/internal/api/handlers"
	"github.com/maheshrc27/screenpost/internal/api/middleware"
	job "github.com/maheshrc27/screenpost/internal/jobs"
	"github.com/maheshrc27/screenpost/internal/media"
	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/queue"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/internal/service"
	"github.com/maheshrc27/screenpost/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	store, err := storage.New(context.Background(), *cfg)
	if err != nil {
		log.Fatalf("Failed to initialise object storage: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout: 10 * time.Minute,
		// Progress streams stay open for the whole upload.
		WriteTimeout: 30 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: cfg.FrontendURL != "" && cfg.FrontendURL != "*",
		MaxAge:           3600,
	}))

	m := metrics.New(prometheus.DefaultRegisterer)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	captureRepo := repository.NewCaptureRepository(db)
	postRepo := repository.NewPostRepository(db)
	threadRepo := repository.NewThreadRepository(db)
	credentialRepo := repository.NewCredentialRepository(db)

	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary, cfg.Media.FFmpegThreads)
	credentialService := service.NewCredentialService(*cfg, credentialRepo, service.NewTokenRefresher(*cfg), m)
	publishService := service.NewPublishService(postRepo, captureRepo, credentialService, service.NewTwitterClient(*cfg), store, ffmpeg, m)
	threadService := service.NewThreadService(threadRepo, postRepo, publishService, m)
	captureService := service.NewCaptureService(captureRepo, cfg.Media.MaxAttempts)

	authMiddleware := middleware.NewAuthMiddleware(*cfg)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	tweets := handlers.NewTweetHandler(publishService, client)
	api.Get("/tweets/:id/publish", tweets.Publish)
	api.Post("/tweets/:id/retry", tweets.Retry)
	api.Post("/tweets/:id/schedule", tweets.Schedule)
	api.Get("/tweets/:id/status", tweets.Status)

	threads := handlers.NewThreadHandler(threadService, client)
	api.Get("/threads/:id/publish", threads.Publish)
	api.Post("/threads/:id/retry", threads.Retry)
	api.Post("/threads/:id/schedule", threads.Schedule)
	api.Get("/threads/:id/status", threads.Status)

	captures := handlers.NewCaptureHandler(captureService)
	api.Get("/captures/exhausted", captures.ListExhausted)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(credentialRepo, credentialService)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()
	defer c.Stop()

	//queue
	queueW := queue.NewQueue(publishService, threadService)

	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	go func() {
		mux := asynq.NewServeMux()
		queueW.Register(mux)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.ServerAddr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on %s", cfg.ServerAddr)

	gracefulShutdown(app, server)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	server.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	log.Println("Server shutdown complete.")
}
