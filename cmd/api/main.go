package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-gym/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-gym/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-gym/internal/config"
	"github.com/ovaphlow/pitchfork/service-gym/internal/identity"
	identityrepo "github.com/ovaphlow/pitchfork/service-gym/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-gym/internal/notify"
	"github.com/ovaphlow/pitchfork/service-gym/internal/provision"
	"github.com/ovaphlow/pitchfork/service-gym/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-gym/internal/router"
	"github.com/ovaphlow/pitchfork/service-gym/internal/staff"
	staffrepo "github.com/ovaphlow/pitchfork/service-gym/internal/staff/repo"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/database"
	"github.com/ovaphlow/pitchfork/service-gym/pkg/utilities"
)

type stores struct {
	identities  identity.Store
	profiles    provision.ProfileStore
	permissions provision.PermissionStore
	trainers    provision.TrainerStore
	sessions    auth.SessionStore
	ping        func(ctx context.Context) error
	close       func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Infow("starting gym api", "addr", cfg.HTTPAddr, "storage", cfg.Storage)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalw("open stores", "err", err)
	}
	defer st.close()

	publisher, closePublisher := openPublisher(cfg, sugar)
	defer closePublisher()

	limiter, closeLimiter := openLimiter(ctx, cfg, sugar)
	defer closeLimiter()

	key, err := auth.LoadSigningKey(cfg.SigningKeyFile)
	if err != nil {
		sugar.Fatalw("signing key", "err", err)
	}
	if cfg.SigningKeyFile == "" {
		sugar.Warn("SIGNING_KEY_FILE not set; tokens will not survive a restart")
	}
	tokens := auth.NewTokenService(key, auth.TokenConfig{
		Issuer:     cfg.TokenIssuer,
		AccessTTL:  cfg.AccessTokenTTL,
		RefreshTTL: cfg.RefreshTokenTTL,
	}, st.sessions)

	ids := identity.NewService(st.identities, identity.BcryptHasher{Cost: 12}, publisher, identity.Config{
		InviteTTL: cfg.InviteTTL,
		InviteURL: cfg.InviteURL,
		Logger:    sugar,
	})
	prov := provision.NewService(ids, st.profiles, st.permissions, st.trainers, publisher, sugar)

	if cfg.AdminEmail != "" {
		if err := prov.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			sugar.Fatalw("bootstrap admin", "err", err)
		}
	}

	handler := router.RegisterRoutes(sugar, cfg.PathPrefix, router.Deps{
		Identity:  identity.NewHandler(ids, sugar),
		Auth:      auth.NewHandler(tokens, ids, prov, limiter, sugar),
		Provision: provision.NewHandler(prov, sugar),
		Tokens:    tokens,
		Roles:     prov,
		Ping:      st.ping,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

func openStores(ctx context.Context, cfg config.App, sugar *zap.SugaredLogger) (stores, error) {
	if cfg.Storage == "memory" {
		sugar.Warn("STORAGE=memory; all data is lost on exit")
		return stores{
			identities:  identity.NewMemoryStore(),
			profiles:    staff.NewProfileTable(),
			permissions: staff.NewPermissionTable(),
			trainers:    staff.NewTrainerTable(),
			sessions:    auth.NewMemorySessions(),
			close:       func() {},
		}, nil
	}

	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		return stores{}, err
	}
	db, err := database.Connect(dbCfg)
	if err != nil {
		return stores{}, err
	}

	identities := identityrepo.NewIdentityRepo(db)
	profiles := staffrepo.NewProfileRepo(db)
	permissions := staffrepo.NewPermissionRepo(db)
	trainers := staffrepo.NewTrainerRepo(db)
	sessions := authrepo.NewSessionRepo(db)

	// identities first, the other tables reference it
	for _, t := range []interface {
		EnsureTable(context.Context) error
	}{identities, profiles, permissions, trainers, sessions} {
		if err := t.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("ensure table: %w", err)
		}
	}

	return stores{
		identities:  identities,
		profiles:    profiles,
		permissions: permissions,
		trainers:    trainers,
		sessions:    sessions,
		ping:        db.PingContext,
		close:       func() { _ = db.Close() },
	}, nil
}

func openPublisher(cfg config.App, sugar *zap.SugaredLogger) (notify.Publisher, func()) {
	if cfg.RabbitURL == "" {
		sugar.Warn("RABBIT_URL not set; events are only logged")
		return notify.LogPublisher{Logger: sugar}, func() {}
	}
	p, err := notify.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitExchange)
	if err != nil {
		sugar.Fatalw("rabbit publisher", "err", err)
	}
	return p, func() { _ = p.Close() }
}

func openLimiter(ctx context.Context, cfg config.App, sugar *zap.SugaredLogger) (ratelimit.Limiter, func()) {
	rl := ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		Block:       cfg.RateLimit.Block,
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewMemory(rl), func() {}
	}
	rdb := ratelimit.NewRedisClient(ratelimit.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		sugar.Fatalw("redis ping", "addr", cfg.RedisAddr, "err", err)
	}
	sugar.Infow("login limiter backed by redis", "addr", cfg.RedisAddr)
	return ratelimit.NewRedis(rdb, "gym:login", rl), func() { _ = rdb.Close() }
}
