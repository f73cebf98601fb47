package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"KURA-backend/internal/asset_mgmt/disposals"
	"KURA-backend/internal/asset_mgmt/imports"
	"KURA-backend/internal/asset_mgmt/lends"
	"KURA-backend/internal/asset_mgmt/units"
	"KURA-backend/internal/platform/apidoc"
	"KURA-backend/internal/platform/auth"
	"KURA-backend/internal/platform/blob"
	"KURA-backend/internal/platform/db"
	"KURA-backend/internal/platform/logger"
	"KURA-backend/internal/platform/tracing"
	"KURA-backend/internal/platform/validate"
)

const configPath = "config/config.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "[FATAL]", err)
		os.Exit(1)
	}
}

func run() error {
	// 設定読み込み
	path := configPath
	if v := os.Getenv("KURA_CONFIG"); v != "" {
		path = v
	}
	cfg, err := db.LoadConfig(path)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Mode)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting", zap.String("mode", cfg.Mode), zap.String("version", cfg.Version))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Mode,
		Version:     cfg.Version,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	conn, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected to DB", zap.String("db", cfg.DB.DBName))

	if err := db.Migrate(ctx, conn, log); err != nil {
		return err
	}

	blobs, err := blob.NewStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}

	if err := validate.Register(); err != nil {
		return err
	}

	// ---- services ----
	secret := []byte(cfg.Auth.JWTSecret)
	authSvc := auth.NewService(conn, secret, cfg.Auth.TokenTTL, log.Named("auth"))
	if err := authSvc.EnsureAdmin(ctx, cfg.Auth.Bootstrap.Username, cfg.Auth.Bootstrap.Password); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	unitSvc := units.NewService(conn, log.Named("units"))
	lendSvc := lends.NewService(conn, log.Named("lends"))
	disposalSvc := disposals.NewService(conn, log.Named("disposals"))
	importSvc := imports.NewService(conn, unitSvc, blobs, imports.NewHTTPFetcher(cfg.Import.FetchTimeout), log.Named("imports"))

	// ---- router ----
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(otelgin.Middleware(cfg.Tracing.ServiceName), logger.GinLogger(log), gin.Recovery())
	_ = r.SetTrustedProxies(nil)
	r.MaxMultipartMemory = int64(cfg.Import.MaxUploadMB) << 20

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		origins := cfg.Server.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"http://localhost:3000"}
		}
		r.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) {
		if err := conn.PingContext(c.Request.Context()); err != nil {
			c.String(http.StatusServiceUnavailable, "db unavailable")
			return
		}
		c.String(http.StatusOK, "ok")
	})
	apidoc.Register(r)

	// /api/v2
	api := r.Group("/api/v2")
	auth.RegisterRoutes(api, authSvc)
	// 画像・元ファイル。キーは内容ハッシュ
	blob.RegisterRoutes(api, blobs)

	authed := api.Group("", auth.RequireAuth(secret, auth.NewStore(conn)))
	auth.RegisterAccountRoutes(authed, authSvc)
	lends.RegisterRoutes(authed, lendSvc)
	units.RegisterRoutes(authed, unitSvc)

	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	auth.RegisterAdminRoutes(admin, authSvc)
	units.RegisterAdminRoutes(admin, unitSvc)
	imports.RegisterRoutes(admin, importSvc, cfg.Import.MaxUploadMB)
	disposals.RegisterRoutes(admin, disposalSvc)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// TLS設定
	certFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Cert)
	keyFile := fmt.Sprintf("config/tls/%s/%s", cfg.Mode, cfg.Certificate.Key)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", "https://"+cfg.Server.Addr))
		if err := srv.ListenAndServeTLS(certFile, keyFile); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown
	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info("shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(sctx)
}
