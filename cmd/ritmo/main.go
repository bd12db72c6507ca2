package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ritmohq/ritmo/internal/api"
	"github.com/ritmohq/ritmo/internal/backup"
	"github.com/ritmohq/ritmo/internal/config"
	"github.com/ritmohq/ritmo/internal/events"
	"github.com/ritmohq/ritmo/internal/service"
	"github.com/ritmohq/ritmo/internal/storage"
	"github.com/ritmohq/ritmo/internal/sweep"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "ritmo token failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ritmo failed: %v\n", err)
		os.Exit(1)
	}
}

// issueToken prints a signed access token for a user. This is a
// single-tenant app; there is no signup flow, so tokens are minted from
// the shell.
func issueToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "user id to embed in the token")
	email := fs.String("email", "", "email to embed in the token")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *user == "" {
		return errors.New("token: -user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token, err := api.IssueToken(cfg.JWTSecret, *user, *email, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := log.New(os.Stderr, "ritmo: ", log.LstdFlags)

	repo, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := storage.MigrateUp(repo.DB()); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	publisher := events.NewPublisher(redisClient, cfg.RedisQueue, logger)
	defer publisher.Close()

	svc := service.New(repo, publisher, cfg.EnergyBudget, logger)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	sweeper := sweep.NewSweeper(repo, logger)
	trigger, err := sweep.NewTrigger(sweeper, cfg.SweepHour, cfg.SweepRedundancy, loc, logger)
	if err != nil {
		return err
	}
	trigger.Start()
	defer trigger.Stop()

	// Catch up immediately: the process may have been down across a
	// day boundary.
	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	if _, err := sweeper.Run(startupCtx); err != nil {
		logger.Printf("startup sweep: %v", err)
	}
	cancel()

	if cfg.BackupBucket != "" {
		uploader, err := backup.NewUploader(context.Background(), cfg.BackupBucket, cfg.BackupPrefix, cfg.DBPath, logger)
		if err != nil {
			return err
		}
		uploader.Start(cfg.BackupInterval)
		defer uploader.Stop()
	}

	router := api.NewRouter(svc, cfg.JWTSecret)
	server := &http.Server{Addr: cfg.Addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		logger.Printf("received %s, shutting down", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
