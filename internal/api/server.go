package api

import (
	"context"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cvrpsolver/internal/config"
	"cvrpsolver/internal/store"
	"cvrpsolver/internal/webhooks"
)

type Server struct {
	Store  store.Store
	Pub    *webhooks.Publisher
	Broker EventBroker
	Config config.Config

	limiter   *rate.Limiter
	slots     chan struct{}
	heartbeat time.Duration // SSE keepalive interval
	wg        sync.WaitGroup
}

// New wires a server around explicit dependencies. workers bounds the number
// of concurrent solves; limiter may be nil.
func New(st store.Store, broker EventBroker, cfg config.Config, workers int, limiter *rate.Limiter) *Server {
	if workers <= 0 {
		workers = 1
	}
	return &Server{
		Store:     st,
		Pub:       webhooks.NewPublisher(st),
		Broker:    broker,
		Config:    cfg,
		limiter:   limiter,
		slots:     make(chan struct{}, workers),
		heartbeat: 15 * time.Second,
	}
}

// NewServer creates a Server from the environment. Without DATABASE_URL or
// SQLITE_PATH it uses the in-memory store.
func NewServer() (*Server, error) {
	st, err := storeFromEnv()
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		if cfg, err = config.Load(p); err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.Printf("[API] redis broker unavailable, using in-memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	var limiter *rate.Limiter
	if rps := envFloat("RATE_RPS", 0); rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), envInt("RATE_BURST", int(rps)+1))
	}
	return New(st, broker, cfg, envInt("SOLVER_WORKERS", runtime.NumCPU()), limiter), nil
}

func storeFromEnv() (store.Store, error) {
	ctx := context.Background()
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.Migrate(ctx); err != nil {
				_ = sp.Close()
				return nil, err
			}
		}
		return sp, nil
	}
	if path := strings.TrimSpace(os.Getenv("SQLITE_PATH")); path != "" {
		sq, err := store.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := sq.Migrate(ctx); err != nil {
			_ = sq.Close()
			return nil, err
		}
		return sq, nil
	}
	return store.NewMemory(), nil
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store)
}

// Wait blocks until every background solve has finished.
func (s *Server) Wait() { s.wg.Wait() }

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
