package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	xoauth2 "golang.org/x/oauth2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	ma "github.com/panyam/memberauth"
	"github.com/panyam/memberauth/config"
	magrpc "github.com/panyam/memberauth/grpc"
	"github.com/panyam/memberauth/metrics"
	maoauth2 "github.com/panyam/memberauth/oauth2"
	"github.com/panyam/memberauth/stores"
	gaestore "github.com/panyam/memberauth/stores/gae"
	gormstore "github.com/panyam/memberauth/stores/gorm"
	redisstore "github.com/panyam/memberauth/stores/redis"
	sqlstore "github.com/panyam/memberauth/stores/sql"
)

const shutdownTimeout = 10 * time.Second

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app is everything run needs, built from a Config
type app struct {
	service  *ma.AuthService
	router   *mux.Router
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", cfg.Addr, "store", cfg.Store)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			httpServer.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer = newGRPCServer(a.service.Validator())
		go func() {
			logger.Info("grpc server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				errc <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
		logger.Error("server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown", "error", shutdownErr)
	}
	return err
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(a.registry)

	users, closeStore, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	hasher, err := cfg.NewHasher()
	if err != nil {
		a.Close()
		return nil, err
	}
	issuer, err := ma.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []ma.ServiceOption{
		ma.WithHasher(hasher),
		ma.WithLogger(logger),
		ma.WithObserver(recorder),
	}
	providerOpts, err := identityProviders(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.service = ma.NewAuthService(users, issuer, append(opts, providerOpts...)...)

	a.router = mux.NewRouter()
	a.router.Use(recorder.Middleware)
	api := &ma.APIHandler{Service: a.service, Logger: logger}
	api.Routes(a.router)
	mountCodeFlows(a.router, cfg, a.service, logger)
	a.router.Handle("/metrics", metrics.Handler(a.registry)).Methods(http.MethodGet)
	a.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	return a, nil
}

// openUserStore builds the configured UserStore and an optional close func
func openUserStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ma.UserStore, func() error, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory user store; users are lost on restart")
		return stores.NewMemoryUserStore(), nil, nil

	case config.StoreFS:
		if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
			return nil, nil, fmt.Errorf("create storage path: %w", err)
		}
		return stores.NewFSUserStore(cfg.StoragePath), nil, nil

	case config.StoreSQLite, config.StoreGormPostgres:
		var dialector gorm.Dialector
		if cfg.Store == config.StoreSQLite {
			dsn := cfg.DSN
			if dsn == "" {
				if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
					return nil, nil, fmt.Errorf("create storage path: %w", err)
				}
				dsn = filepath.Join(cfg.StoragePath, "members.db")
			}
			dialector = sqlite.Open(dsn)
		} else {
			dialector = postgres.Open(cfg.DSN)
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", cfg.Store, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, nil, err
		}
		if cfg.Store == config.StoreSQLite {
			sqlDB.SetMaxOpenConns(1)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			sqlDB.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return gormstore.NewUserStore(db), sqlDB.Close, nil

	case config.StorePostgres:
		db, err := sqlstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		store := sqlstore.NewUserStore(db)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return redisstore.NewUserStore(client, cfg.RedisPrefix), client.Close, nil

	case config.StoreDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("connect datastore: %w", err)
		}
		return gaestore.NewUserStore(client, cfg.DatastoreNamespace), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// identityProviders registers every configured provider with the service
func identityProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]ma.ServiceOption, error) {
	var opts []ma.ServiceOption
	if cfg.Kakao.Enabled || cfg.Kakao.HasCodeFlow() {
		p := maoauth2.NewKakaoProvider()
		p.Logger = logger
		opts = append(opts, ma.WithIdentityProvider(maoauth2.ProviderKakao, p))
	}
	if cfg.Google.Enabled || cfg.Google.HasCodeFlow() {
		p := maoauth2.NewGoogleProvider()
		p.Logger = logger
		opts = append(opts, ma.WithIdentityProvider(maoauth2.ProviderGoogle, p))
	}
	if cfg.Github.Enabled || cfg.Github.HasCodeFlow() {
		p := maoauth2.NewGithubProvider()
		p.Logger = logger
		opts = append(opts, ma.WithIdentityProvider(maoauth2.ProviderGithub, p))
	}
	if cfg.OIDCIssuer != "" {
		p, err := maoauth2.NewOIDCProvider(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		p.Logger = logger
		opts = append(opts, ma.WithIdentityProvider(maoauth2.ProviderOIDC, p))
	}
	return opts, nil
}

// mountCodeFlows serves /auth/{provider}/ for providers with client credentials
func mountCodeFlows(r *mux.Router, cfg *config.Config, service *ma.AuthService, logger *slog.Logger) {
	base := strings.TrimRight(cfg.PublicURL, "/")
	flows := []struct {
		name      string
		provider  config.ProviderConfig
		configure func(clientID, clientSecret, callbackURL string) *xoauth2.Config
	}{
		{maoauth2.ProviderKakao, cfg.Kakao, maoauth2.KakaoConfig},
		{maoauth2.ProviderGoogle, cfg.Google, maoauth2.GoogleConfig},
		{maoauth2.ProviderGithub, cfg.Github, maoauth2.GithubConfig},
	}
	for _, f := range flows {
		if !f.provider.HasCodeFlow() {
			continue
		}
		prefix := "/auth/" + f.name
		flow := maoauth2.NewCodeFlow(f.name, f.configure(f.provider.ClientID, f.provider.ClientSecret, base+prefix+"/callback/"), service)
		flow.Logger = logger
		r.PathPrefix(prefix + "/").Handler(http.StripPrefix(prefix, flow))
		logger.Info("mounted oauth code flow", "provider", f.name, "path", prefix+"/")
	}
}

// newGRPCServer serves the standard health service and the Members service
// behind bearer-token auth. Health checks stay public so load balancers can
// probe without a token; Members.WhoAmI requires one.
func newGRPCServer(validator ma.TokenValidator) *grpc.Server {
	interceptorConfig := magrpc.NewPublicMethodsConfig(validator,
		healthpb.Health_Check_FullMethodName,
		healthpb.Health_Watch_FullMethodName,
	)
	server := grpc.NewServer(
		grpc.UnaryInterceptor(magrpc.UnaryAuthInterceptor(interceptorConfig)),
		grpc.StreamInterceptor(magrpc.StreamAuthInterceptor(interceptorConfig)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())
	magrpc.RegisterMembersServer(server)
	return server
}
