package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/pubcaster/internal/cache"
	"github.com/hitoshi/pubcaster/internal/config"
	"github.com/hitoshi/pubcaster/internal/database"
	"github.com/hitoshi/pubcaster/internal/enclosure"
	"github.com/hitoshi/pubcaster/internal/feed"
	"github.com/hitoshi/pubcaster/internal/handler"
	"github.com/hitoshi/pubcaster/internal/logger"
	"github.com/hitoshi/pubcaster/internal/metrics"
	"github.com/hitoshi/pubcaster/internal/middleware"
	"github.com/hitoshi/pubcaster/internal/model"
	"github.com/hitoshi/pubcaster/internal/relay"
	"github.com/hitoshi/pubcaster/internal/render"
	"github.com/hitoshi/pubcaster/internal/repository"
	"github.com/hitoshi/pubcaster/internal/security"
	"github.com/hitoshi/pubcaster/internal/split"
	"github.com/hitoshi/pubcaster/internal/worker/cleanup"
	"github.com/hitoshi/pubcaster/internal/worker/refresh"
)

const (
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// shutdownTimeout はグレースフルシャットダウンの待ち時間。
	shutdownTimeout = 30 * time.Second
	// cleanupInterval はスナップショット削除ジョブの実行間隔。
	cleanupInterval = 24 * time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを作り直す
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。buildの出力はoutへ、ログはlogOutへ書き出す。
func Run(out, logOut io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(logOut)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("relays", len(cfg.Relays)),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandBuild:
		return runBuild(cfg, out, args[1:])
	default:
		return runServe(cfg)
	}
}

// newBuilder はリレー接続からフィード組み立てまでの部品をワイヤリングする。
// ctxがキャンセルされるとリレー接続も閉じられる。
func newBuilder(ctx context.Context, cfg *config.Config, collector metrics.MetricsCollector, log *slog.Logger) *feed.Builder {
	session := relay.NewSession(ctx, relay.Config{
		Relays:       cfg.Relays,
		QueryTimeout: cfg.RelayQueryTimeout,
	}, collector, log)
	log.Info("relay session ready", slog.Any("relays", session.Relays()))

	profiles := cache.NewProfileCache(session, cfg.ProfileCacheSize, cfg.ProfileCacheTTL)
	resolver := split.NewResolver(profiles, collector, cfg.EnrichConcurrency, log)
	renderer := render.NewRenderer(security.NewShowNotesSanitizer())

	// 型付きnilを避けるため、無効時はインターフェースをnilのままにする
	var prober feed.LengthProber
	if cfg.EnclosureProbe {
		prober = enclosure.NewProber(security.NewMediaGuard(), cfg.EnclosureProbeTimeout, log)
	}

	return feed.NewBuilder(session, profiles, resolver, renderer, prober, collector, feed.Options{
		BaseURL:           cfg.BaseURL,
		PostLimit:         cfg.PostLimit,
		ArticleLimit:      cfg.ArticleLimit,
		LiveActivityLimit: cfg.LiveActivityLimit,
	}, log)
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// runServe はAPIサーバーモードで起動する。
// DATABASE_URLが設定されていればスナップショット保存を有効にする。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. フィード組み立て
	builder := newBuilder(ctx, cfg, collector, log)

	// 3. スナップショット保存（任意）
	var (
		store  feed.SnapshotStore
		health handler.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		slog.Info("database connection established")
		store = repository.NewPostgresSnapshotRepo(db)
		health = db
	} else {
		slog.Info("DATABASE_URL is not set; snapshot fallback disabled")
	}

	feedService := feed.NewService(builder, store, collector, cfg.RefreshInterval, log)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		FeedService:       feedService,
		BuildTimeout:      cfg.BuildTimeout,
		BaseURL:           cfg.BaseURL,
		DefaultIdentifier: cfg.DefaultIdentifier,
		HealthChecker:     health,
		MetricsHandler:    metrics.Handler(registry),
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.BuildTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限の来たスナップショットを定期的に組み立て直し、古いスナップショットを削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 部品の初期化
	repo := repository.NewPostgresSnapshotRepo(db)
	builder := newBuilder(ctx, cfg, metrics.Nop{}, log)
	refresher := refresh.NewRefresher(builder, repo, metrics.Nop{}, cfg.RefreshInterval, log)
	scheduler := refresh.NewScheduler(repo, refresher, log, cfg.RefreshMaxConcurrent)
	cleanupJob := cleanup.NewCleanupJob(db, cfg.SnapshotRetentionDays, log)

	slog.Info("worker starting",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Int("max_concurrent", cfg.RefreshMaxConcurrent),
		slog.Int("retention_days", cfg.SnapshotRetentionDays),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, cleanupInterval)

	// 更新スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.RefreshInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runBuild は識別子1件のフィードを組み立て、XMLをoutに書き出す。
func runBuild(cfg *config.Config, out io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "" {
		return model.NewInvalidIdentifierError("識別子が指定されていません")
	}
	identifier := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout)
	defer cancel()

	builder := newBuilder(ctx, cfg, metrics.Nop{}, slog.Default())
	res, err := builder.Build(ctx, identifier)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.NewBuildTimeoutError(identifier)
		}
		return fmt.Errorf("build failed: %w", err)
	}

	if _, err := out.Write(res.XML); err != nil {
		return fmt.Errorf("failed to write feed: %w", err)
	}

	slog.Info("feed built",
		slog.String("identifier", identifier),
		slog.String("pubkey", res.Pubkey),
		slog.Int("items", len(res.Items)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
