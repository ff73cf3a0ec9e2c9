package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/screenpost/configs"
	job "github.com/maheshrc27/screenpost/internal/jobs"
	"github.com/maheshrc27/screenpost/internal/media"
	"github.com/maheshrc27/screenpost/internal/metrics"
	"github.com/maheshrc27/screenpost/internal/models"
	"github.com/maheshrc27/screenpost/internal/repository"
	"github.com/maheshrc27/screenpost/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type worker struct {
	db  *sql.DB
	job *job.MediaClaimJob
}

func openWorker(ctx context.Context) (*worker, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}
	cfg := config.LoadConfig()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database is unreachable: %w", err)
	}

	store, err := storage.New(ctx, *cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpegBinary, cfg.Media.FFprobeBinary, cfg.Media.FFmpegThreads)
	processors := map[models.ProcessingKind]media.Processor{
		models.KindThumbnail: media.NewThumbnailProcessor(store, ffmpeg),
		models.KindFrames:    media.NewFrameProcessor(store, ffmpeg),
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	claimJob := job.NewMediaClaimJob(repository.NewCaptureRepository(db), store, processors, cfg.Media, m)
	return &worker{db: db, job: claimJob}, nil
}

func parseKind(kind string) (models.ProcessingKind, error) {
	k := models.ProcessingKind(kind)
	if !k.Valid() {
		return "", fmt.Errorf("--kind %q: %w", kind, models.ErrInvalidKind)
	}
	return k, nil
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "mediaworker",
		Short:         "Background thumbnail and frame extraction for captures",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newOnceCommand())
	return root
}

func newRunCommand() *cobra.Command {
	var kind, metricsAddr string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Poll for eligible captures and process them until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w, err := openWorker(ctx)
			if err != nil {
				return err
			}
			defer w.db.Close()

			if metricsAddr != "" {
				srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						slog.Info("metrics server stopped", "error", err)
					}
				}()
				defer srv.Close()
			}

			return w.job.Run(ctx, k)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindThumbnail), "Processing kind: thumbnail or frames")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

func newOnceCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Claim and process at most one eligible capture",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}

			w, err := openWorker(cmd.Context())
			if err != nil {
				return err
			}
			defer w.db.Close()

			claimed, err := w.job.ClaimAndProcess(cmd.Context(), k)
			if err != nil {
				return err
			}
			if !claimed {
				fmt.Fprintln(cmd.OutOrStdout(), "No eligible capture")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Processed one capture")
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(models.KindThumbnail), "Processing kind: thumbnail or frames")
	return cmd
}
