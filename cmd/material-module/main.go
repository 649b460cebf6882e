// Точка входа Material Module — модуль приёма учебных материалов Edustore.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// открывает соединение с RabbitMQ и blob-хранилищем, создаёт сервисный слой
// и API handlers, запускает listener вердиктов и topologymetrics,
// HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/edustore/material-module/internal/api/handlers"
	"github.com/bigkaa/edustore/material-module/internal/api/middleware"
	"github.com/bigkaa/edustore/material-module/internal/blobstore"
	"github.com/bigkaa/edustore/material-module/internal/bus"
	"github.com/bigkaa/edustore/material-module/internal/config"
	"github.com/bigkaa/edustore/material-module/internal/correlation"
	"github.com/bigkaa/edustore/material-module/internal/database"
	"github.com/bigkaa/edustore/material-module/internal/repository"
	"github.com/bigkaa/edustore/material-module/internal/server"
	"github.com/bigkaa/edustore/material-module/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Material Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("MM_DEPHEALTH_GROUP") == "" {
		logger.Warn("MM_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL идёт через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Подключение к RabbitMQ
	amqpBus, err := bus.NewAMQPBus(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("Ошибка подключения к RabbitMQ", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer amqpBus.Close()
	logger.Info("Соединение с RabbitMQ установлено")

	// 6. Blob-хранилище
	blobs, err := blobstore.NewDiskStore(cfg.BlobDir, cfg.BlobPublicURL)
	if err != nil {
		logger.Error("Ошибка инициализации blob-хранилища",
			slog.String("dir", cfg.BlobDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 7. Repositories
	materialRepo := repository.NewMaterialRepository(pool)
	tagRepo := repository.NewTagRepository(pool)
	committer := repository.NewMaterialCommitter(pool)

	// 8. Services
	registry := correlation.NewRegistry()
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	notify := service.NewNotifyService(amqpBus, cfg.NotifyQueue, logger)

	validationSvc := service.NewValidationService(
		cfg, materialRepo, committer, blobs, amqpBus,
		registry, notify, cache, logger,
	)
	librarySvc := service.NewLibraryService(materialRepo, tagRepo, blobs, cache, logger)

	// 9. Listener вердиктов анализатора
	listener := service.NewVerdictListener(amqpBus, cfg.VerdictQueue, registry, logger)
	if err := listener.Start(ctx); err != nil {
		logger.Error("Ошибка подписки на очередь вердиктов",
			slog.String("queue", cfg.VerdictQueue),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// 9.1 Фоновая сверка blob-хранилища
	var reconcileSvc *service.ReconcileService
	if cfg.ReconcileInterval > 0 {
		reconcileSvc = service.NewReconcileService(
			materialRepo, blobs,
			cfg.ReconcileInterval, cfg.ReconcileMinAge,
			logger,
		)
		reconcileSvc.Start(ctx)
	} else {
		logger.Info("Сверка blob-хранилища отключена (MM_RECONCILE_INTERVAL=0)")
	}

	// 10. Health handler (PostgreSQL + RabbitMQ)
	healthHandler := handlers.NewHealthHandler(
		database.NewReadinessChecker(pool),
		amqpBus,
	)

	// 11. API handler (scope-проверки активны только вместе с JWT)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewMaterialsHandler(validationSvc, librarySvc, cfg),
		handlers.NewLibraryHandler(librarySvc),
		healthHandler,
		cfg.JWKSUrl != "",
	)

	// 12. JWT middleware (опционально — без MM_JWKS_URL сервис работает
	// без аутентификации, владелец берётся из формы)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWKSUrl != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   30 * time.Second,
			RefreshInterval: time.Hour,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			logger.Error("Ошибка создания JWT middleware", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer jwtAuth.Close()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSUrl))
	} else {
		logger.Warn("MM_JWKS_URL не задан, аутентификация отключена")
	}

	// 13. topologymetrics — мониторинг зависимостей (PostgreSQL + RabbitMQ)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.ServiceID,
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.AMQPManagementURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 14. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 15. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}
	if reconcileSvc != nil {
		reconcileSvc.Stop()
	}

	logger.Info("Material Module остановлен")
}
