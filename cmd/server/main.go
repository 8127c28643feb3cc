package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dukaan/backend/internal/config"
	"dukaan/backend/internal/httpapi"
	"dukaan/backend/internal/service"
	"dukaan/backend/internal/session"
	"dukaan/backend/internal/store"
	boltstore "dukaan/backend/internal/store/bolt"
	"dukaan/backend/internal/store/memory"
	pgstore "dukaan/backend/internal/store/postgres"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	lg, err := newLogger(cfg.LogDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = lg.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		lg.Fatal("Invalid security configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = zctx.Base(ctx, lg)

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Server failed", zap.Error(err))
	}
	lg.Info("Server stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type closer struct {
	name string
	fn   func() error
}

func run(ctx context.Context, lg *zap.Logger, cfg config.Config) error {
	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				lg.Warn("Close failed", zap.String("resource", closers[i].name), zap.Error(err))
			}
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(initCtx, lg, cfg)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closer{name: "repository", fn: closeRepo})
	}

	g, ctx := errgroup.WithContext(ctx)

	var sessions session.Store
	if cfg.RedisAddr != "" {
		rs := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CartTTL)
		if err := rs.Ping(initCtx); err != nil {
			_ = rs.Close()
			return errors.Wrap(err, "redis unavailable and REDIS_ADDR is set")
		}
		closers = append(closers, closer{name: "redis", fn: rs.Close})
		sessions = rs
		lg.Info("Cart sessions: redis", zap.String("addr", cfg.RedisAddr))
	} else {
		ms := session.NewMemoryStore(cfg.CartTTL)
		sessions = ms
		g.Go(func() error {
			sweepSessions(ctx, lg, ms, time.Minute)
			return nil
		})
		lg.Info("Cart sessions: memory", zap.Duration("ttl", cfg.CartTTL))
	}

	svc := service.New(repo, sessions, cfg.ShopName)
	auth := httpapi.NewAuthManager(initCtx, cfg.AuthSecret, cfg.AccessTokenTTL, cfg.ManagerPIN, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, lg)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}

// openRepository picks postgres, then bolt, then the seeded in-memory store.
// A configured backend that cannot be reached is an error, never a silent
// fallback.
func openRepository(ctx context.Context, lg *zap.Logger, cfg config.Config) (store.Repository, func() error, error) {
	accounts := store.SeedAccounts{
		AdminPassword:   cfg.SeedAdminPassword,
		CashierPassword: cfg.SeedCashierPassword,
	}
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, errors.Wrap(err, "postgres unavailable and DATABASE_URL is set")
		}
		if err := pg.RunMigrations(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, errors.Wrap(err, "run migrations")
		}
		if err := store.SeedIfEmpty(ctx, pg, lg, accounts); err != nil {
			_ = pg.Close()
			return nil, nil, errors.Wrap(err, "seed postgres")
		}
		lg.Info("Repository: postgres")
		return pg, pg.Close, nil

	case cfg.BoltPath != "":
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "open bolt %s", cfg.BoltPath)
		}
		if err := db.SeedIfEmpty(ctx, lg, accounts); err != nil {
			_ = db.Close()
			return nil, nil, errors.Wrap(err, "seed bolt")
		}
		lg.Info("Repository: bolt", zap.String("path", cfg.BoltPath))
		return db, db.Close, nil

	default:
		mem, err := memory.NewSeeded(lg, accounts)
		if err != nil {
			return nil, nil, errors.Wrap(err, "seed memory store")
		}
		lg.Info("Repository: in-memory")
		return mem, nil, nil
	}
}

func sweepSessions(ctx context.Context, lg *zap.Logger, ms *session.MemoryStore, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := ms.Sweep(); n > 0 {
				lg.Debug("Expired carts swept", zap.Int("count", n))
			}
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.ManagerPIN) < 6 {
		return errors.New("MANAGER_PIN must be set and at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return errors.New("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return errors.Wrap(err, "MANAGER_PIN is too weak")
	}
	return nil
}

// validatePINStrength rejects PINs that are all one digit, ascending or
// descending runs, or on the common-PIN list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "696969": true,
		"159753": true, "102030": true,
	}
	if known[pin] {
		return errors.New("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return errors.New("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return errors.New("sequential PIN not allowed")
	}

	return nil
}
