package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moe-bot/internal/analytics"
	"moe-bot/internal/banner"
	"moe-bot/internal/bot"
	"moe-bot/internal/config"
	"moe-bot/internal/modules/audit"
	"moe-bot/internal/modules/greetings"
	"moe-bot/internal/stats"
	"moe-bot/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	auditDB, err := storage.NewAuditDB(cfg.AuditDBPath)
	if err != nil {
		logger.Fatal("audit storage init failed", zap.Error(err))
	}
	defer auditDB.Close()
	if err := auditDB.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	store, err := storage.Open(cfg.SettingsPath, logger.Named("settings"))
	if err != nil {
		logger.Fatal("settings load failed", zap.String("path", cfg.SettingsPath), zap.Error(err))
	}

	auditLogger := audit.NewLogger(auditDB, logger)
	analyticsSvc := analytics.New(auditDB)

	var banners greetings.BannerRenderer
	if renderer, err := banner.New(cfg.AssetsDir); err != nil {
		logger.Warn("banner renderer disabled", zap.Error(err))
	} else {
		banners = renderer
	}

	botSvc, err := bot.New(cfg, logger, store, auditLogger, analyticsSvc, banners)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := botSvc.Start(ctx); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.Int("guilds", len(store.GuildIDs())))

	statsSvc := stats.New(botSvc, cfg.StatsRefresh(), cfg.ClientID, logger.Named("stats"))
	stopStats := statsSvc.Start(ctx)
	if url := statsSvc.Snapshot().InviteURL; url != "" {
		logger.Info("invite url", zap.String("url", url))
	}

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/api/stats", statsSvc.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	stopStats()
	botSvc.Close(shutdownCtx)
	if err := store.Save(); err != nil {
		logger.Warn("final settings save failed", zap.Error(err))
	}
}
