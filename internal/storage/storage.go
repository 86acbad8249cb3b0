package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-agent-go/internal/config"
	applog "resume-agent-go/internal/logger"
)

// Storage aggregates every backing service. Components are optional: a
// missing or unreachable backend is logged and left nil so the rest of the
// application can still serve the pipeline endpoints.
type Storage struct {
	MinIO    *MinIO
	RabbitMQ *RabbitMQ
	Qdrant   *Qdrant
	MySQL    *MySQL
	Redis    *Redis
}

// NewStorage initializes every configured component. It fails only when
// nothing could be initialized at all.
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	s := &Storage{}
	var initErrors []string

	if cfg.MinIO.Endpoint != "" {
		minioClient, err := NewMinIO(&cfg.MinIO)
		if err != nil {
			applog.Warn().Err(err).Msg("failed to initialize MinIO")
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		} else {
			s.MinIO = minioClient
		}
	}

	if cfg.RabbitMQ.URL != "" {
		mq, err := NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			applog.Warn().Err(err).Msg("failed to initialize RabbitMQ")
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		} else {
			s.RabbitMQ = mq
		}
	}

	if cfg.Qdrant.Endpoint != "" {
		var qdrantOpts []QdrantOption
		if cfg.Qdrant.Distance != "" {
			qdrantOpts = append(qdrantOpts, WithDistanceMetric(cfg.Qdrant.Distance))
		}
		if cfg.Qdrant.TimeoutSeconds > 0 {
			qdrantOpts = append(qdrantOpts, WithHTTPTimeout(time.Duration(cfg.Qdrant.TimeoutSeconds)*time.Second))
		}
		qdrant, err := NewQdrant(&cfg.Qdrant, qdrantOpts...)
		if err != nil {
			applog.Warn().Err(err).Msg("failed to initialize Qdrant")
			initErrors = append(initErrors, fmt.Sprintf("Qdrant: %v", err))
		} else {
			s.Qdrant = qdrant
		}
	}

	if cfg.MySQL.Host != "" {
		mysql, err := NewMySQL(&cfg.MySQL)
		if err != nil {
			applog.Warn().Err(err).Msg("failed to initialize MySQL")
			initErrors = append(initErrors, fmt.Sprintf("MySQL: %v", err))
		} else {
			s.MySQL = mysql
		}
	}

	if cfg.Redis.Address != "" {
		redis, err := NewRedisAdapter(&cfg.Redis)
		if err != nil {
			applog.Warn().Err(err).Msg("failed to initialize Redis")
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		} else {
			s.Redis = redis
		}
	}

	if s.MinIO == nil && s.RabbitMQ == nil && s.Qdrant == nil && s.MySQL == nil && s.Redis == nil {
		if len(initErrors) == 0 {
			applog.Warn().Msg("no storage backends configured, document endpoints will be unavailable")
			return s, nil
		}
		return nil, fmt.Errorf("all storage components failed to initialize: %s", strings.Join(initErrors, "; "))
	}

	if len(initErrors) > 0 {
		applog.Warn().Str("failures", strings.Join(initErrors, "; ")).Msg("some storage components failed to initialize")
	}
	return s, nil
}

// Close shuts down every open connection.
func (s *Storage) Close() {
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			applog.Warn().Err(err).Msg("failed to close RabbitMQ connection")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			applog.Warn().Err(err).Msg("failed to close MySQL connection")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			applog.Warn().Err(err).Msg("failed to close Redis connection")
		}
	}
}
