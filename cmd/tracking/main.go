package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eshway/mailing-engine/internal/config"
	"github.com/eshway/mailing-engine/internal/tracking"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Tracking.SigningKey == "" {
		log.Fatal("tracking.signing_key is required")
	}

	injector := tracking.NewInjector(cfg.Tracking.BaseURL, cfg.Tracking.SigningKey)

	var sink tracking.EventSink
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		sink = tracking.NewPublisher(rdb)
		log.Printf("[Tracking] Publishing events to Redis stream %s", tracking.Stream)
	} else {
		log.Printf("[Tracking] REDIS_URL not set, events will be logged only")
	}

	handler := tracking.NewHandler(injector, sink)

	srv := &http.Server{
		Addr:         cfg.Tracking.ListenAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s", cfg.Tracking.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}
