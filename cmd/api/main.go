package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"voice-pipeline-go/internal/api"
	"voice-pipeline-go/internal/app"
	"voice-pipeline-go/internal/config"
	"voice-pipeline-go/internal/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load() // loads .env

	cfg, err := config.Load(os.Getenv("PIPELINE_CONFIG"))
	if err != nil {
		app.NewLogger(&config.Config{}, nil).WithError(err).Fatal("failed to load config")
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		app.NewLogger(cfg, nil).WithError(err).Fatal("failed to initialize pipeline")
	}

	err = run(a)
	if cerr := a.Close(); cerr != nil {
		a.Log.WithError(cerr).Warn("failed to close store")
	}
	if err != nil {
		a.Log.WithError(err).Fatal("server terminated")
	}
}

func run(a *app.App) error {
	cfg := a.Config
	log := a.Log.With("service", "voice-pipeline-go")
	log.WithField("database", a.Store.Path()).Info("starting service")

	handler := api.NewHandler(api.Deps{
		Daemon:      a.Supervisor,
		Runs:        a.Runs,
		Records:     a.Store,
		Log:         a.Log,
		StopTimeout: config.Seconds(cfg.OpenAI.PlainTimeoutSeconds),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: config.Seconds(cfg.OpenAI.PlainTimeoutSeconds) + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down")
		return shutdown(srv, a.Supervisor, shutdownTimeout, log)
	})
	return g.Wait()
}

type loopStopper interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains HTTP first, then waits for the pipeline loop. Each step
// has its own budget; a loop that overruns is logged, not returned.
func shutdown(srv *http.Server, loop loopStopper, timeout time.Duration, log *logger.Logger) error {
	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), timeout)
	defer cancelHTTP()
	err := srv.Shutdown(httpCtx)

	loopCtx, cancelLoop := context.WithTimeout(context.Background(), timeout)
	defer cancelLoop()
	if lerr := loop.Shutdown(loopCtx); lerr != nil {
		log.WithError(lerr).Warn("pipeline loop did not stop in time")
	}
	return err
}
