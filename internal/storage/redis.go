package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	"resume-agent-go/internal/config"
	"resume-agent-go/internal/constants"
	applog "resume-agent-go/internal/logger"
)

// ErrNotFound wraps redis.Nil so callers need not import the driver.
var ErrNotFound = redis.Nil

// Redis wraps the go-redis client. Its main job here is duplicate detection
// of uploaded files via per-tenant MD5 sets.
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter connects and instruments the client with OpenTelemetry.
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,

		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,

		MaxRetries: cfg.MaxRetries,
	}

	client := redis.NewClient(opt)

	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{Client: client, config: cfg}, nil
}

// Close closes the client connection.
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// fileMD5Key is the per-tenant SET of seen file MD5s.
func fileMD5Key(tenantID string) string {
	return fmt.Sprintf(constants.KeyFileMD5Set, tenantID)
}

// CheckAndMarkFileMD5 atomically records md5Hex for the tenant and reports
// whether it was already present. SADD returning zero added members means a
// duplicate upload.
func (r *Redis) CheckAndMarkFileMD5(ctx context.Context, tenantID, md5Hex string) (bool, error) {
	if r.Client == nil {
		return false, fmt.Errorf("redis client is not initialized")
	}
	if md5Hex == "" {
		return false, fmt.Errorf("md5 must not be empty")
	}

	key := fileMD5Key(tenantID)
	added, err := r.Client.SAdd(ctx, key, md5Hex).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record file md5: %w", err)
	}

	// Every write refreshes the TTL so the set never outlives the
	// configured retention. Without it the dedup set grows without bound.
	if r.config != nil && r.config.MD5RecordExpireDays > 0 {
		expiry := time.Duration(r.config.MD5RecordExpireDays) * 24 * time.Hour
		if err := r.Client.Expire(ctx, key, expiry).Err(); err != nil {
			applog.Warn().Err(err).Str("key", key).Msg("failed to refresh dedup set expiry")
		}
	}

	return added == 0, nil
}

// ForgetFileMD5 removes one MD5 from the tenant's dedup set, allowing a
// re-upload after deletion.
func (r *Redis) ForgetFileMD5(ctx context.Context, tenantID, md5Hex string) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.SRem(ctx, fileMD5Key(tenantID), md5Hex).Err()
}
