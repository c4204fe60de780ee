package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"booking-system/config"
	"booking-system/handler"
	"booking-system/repository"
	"booking-system/service"
)

// Store 프로세스가 사용하는 RDBMS 저장소 (MySQL/GORM 또는 PostgreSQL/sqlx)
type Store interface {
	repository.BookingRepository
	repository.SchemaRepository
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*repository.MySQLRepository)(nil)
	_ Store = (*repository.PostgresRepository)(nil)
)

// OpenStore DB_DRIVER 에 따라 저장소를 연결합니다.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err := repository.OpenPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			return nil, err
		}
		return repository.NewPostgresRepository(db), nil
	default:
		db, err := repository.OpenMySQL(cfg.MySQLDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
		if err != nil {
			return nil, err
		}
		return repository.NewMySQLRepository(db), nil
	}
}

func OpenCache(ctx context.Context, cfg *config.Config) (*repository.RedisRepository, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	cache := repository.NewRedisRepository(rdb)
	if err := cache.Ping(ctx); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return cache, nil
}

// OpenQueue QUEUE_DRIVER 에 따라 비동기 예약 발행자를 만듭니다.
func OpenQueue(cfg *config.Config) (repository.QueueRepository, error) {
	switch cfg.QueueDriver {
	case config.QueueRabbitMQ:
		rmq, err := repository.NewRabbitMQRepository(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.RabbitMQQueue, cfg.RabbitMQRoutingKey)
		if err != nil {
			return nil, err
		}
		return rmq, nil
	default:
		return repository.NewKafkaRepository(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaDLQTopic), nil
	}
}

/*
 * App: API 서버와 워커가 공유하는 의존성 묶음
 * 전역 싱글톤 없이 여기서 만든 핸들을 서비스/워커에 주입합니다.
 */
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   Store
	Cache   *repository.RedisRepository
	Queue   repository.QueueRepository
	Service *service.BookingService
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// 1. RDBMS
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// 2. Redis
	cache, err := OpenCache(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	// 3. Kafka / RabbitMQ
	queue, err := OpenQueue(cfg)
	if err != nil {
		cache.Close()
		store.Close()
		return nil, err
	}

	svc := service.NewBookingService(store, cache, queue, service.Options{
		LockTTL:  cfg.LockTTL,
		CacheTTL: cfg.CacheTTL,
		Logger:   logger,
	})

	logger.Info("의존성 초기화 완료", "db_driver", cfg.DBDriver, "queue_driver", cfg.QueueDriver)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Cache:   cache,
		Queue:   queue,
		Service: svc,
	}, nil
}

// HealthChecks /health 에서 확인할 의존성
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	return map[string]handler.HealthCheck{
		a.Config.DBDriver: a.Store.Ping,
		"redis":           a.Cache.Ping,
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
