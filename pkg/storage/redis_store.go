package storage

import (
	"context"
	"encoding/json"
	"time"

	"interview-monitor/pkg/errors"
	"interview-monitor/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const operationTimeout = 5 * time.Second

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Address      string
	Password     string
	Database     int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeyPrefix    string
	TTL          time.Duration
}

// RedisStore keeps session records in Redis with a TTL. Records are indexed
// per monitor in a sorted set scored by start time.
type RedisStore struct {
	client    redis.UniversalClient
	logger    *logrus.Logger
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg RedisConfig, logger *logrus.Logger) (*RedisStore, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "interview-monitor:session:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		metrics.RecordRedisOperation("ping", err)
		return nil, errors.Wrap(errors.ErrUnavailable, "failed to connect to Redis").
			WithField("address", cfg.Address).
			WithField("cause", err.Error())
	}

	logger.WithFields(logrus.Fields{
		"address":  cfg.Address,
		"database": cfg.Database,
		"ttl":      cfg.TTL,
	}).Info("Redis session store initialized")

	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL, logger), nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Save stores the record and indexes it under its monitor
func (r *RedisStore) Save(ctx context.Context, record SessionRecord) error {
	if record.SessionID == "" {
		return errors.NewInvalidInput("session record has no session id")
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	record.LastUpdate = time.Now()
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session record")
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.sessionKey(record.SessionID), data, r.ttl)
	if record.MonitorID != "" {
		idx := r.monitorIndexKey(record.MonitorID)
		pipe.ZAdd(ctx, idx, redis.Z{
			Score:  float64(record.StartedAt.UnixMilli()),
			Member: record.SessionID,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, idx, r.ttl)
		}
	}
	_, err = pipe.Exec(ctx)
	metrics.RecordRedisOperation("save", err)
	if err != nil {
		return errors.Wrap(err, "failed to store session record in Redis").WithField("session_id", record.SessionID)
	}

	r.logger.WithFields(logrus.Fields{
		"session_id": record.SessionID,
		"monitor_id": record.MonitorID,
	}).Debug("Session record stored in Redis")
	return nil
}

// Load fetches a record by session ID
func (r *RedisStore) Load(ctx context.Context, sessionID string) (SessionRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		metrics.RecordRedisOperation("load", nil)
		return SessionRecord{}, errors.NewNotFound("session record not found", map[string]interface{}{
			"session_id": sessionID,
		})
	}
	metrics.RecordRedisOperation("load", err)
	if err != nil {
		return SessionRecord{}, errors.Wrap(err, "failed to load session record from Redis")
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return SessionRecord{}, errors.Wrap(err, "failed to unmarshal session record")
	}
	return record, nil
}

// Delete removes a record and its index entry
func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	record, err := r.Load(ctx, sessionID)
	if err != nil {
		if errors.IsErrorType(err, errors.ErrNotFound) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(sessionID))
	if record.MonitorID != "" {
		pipe.ZRem(ctx, r.monitorIndexKey(record.MonitorID), sessionID)
	}
	_, err = pipe.Exec(ctx)
	metrics.RecordRedisOperation("delete", err)
	if err != nil {
		return errors.Wrap(err, "failed to delete session record from Redis")
	}
	return nil
}

// List returns the records of monitorID, oldest first. Index entries whose
// record has expired are pruned.
func (r *RedisStore) List(ctx context.Context, monitorID string) ([]SessionRecord, error) {
	if monitorID == "" {
		return nil, errors.NewInvalidInput("monitor id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	idx := r.monitorIndexKey(monitorID)
	ids, err := r.client.ZRange(ctx, idx, 0, -1).Result()
	metrics.RecordRedisOperation("list", err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list session records")
	}
	if len(ids) == 0 {
		return []SessionRecord{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, r.sessionKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, errors.Wrap(err, "failed to fetch session records")
	}

	records := make([]SessionRecord, 0, len(ids))
	var orphans []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			orphans = append(orphans, ids[i])
			continue
		}
		if err != nil {
			continue
		}
		var record SessionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			r.logger.WithError(err).WithField("session_id", ids[i]).Warn("Skipping corrupt session record")
			continue
		}
		records = append(records, record)
	}

	if len(orphans) > 0 {
		if err := r.client.ZRem(ctx, idx, orphans...).Err(); err != nil {
			r.logger.WithError(err).Warn("Failed to prune expired session index entries")
		}
	}
	return records, nil
}

// Health pings Redis
func (r *RedisStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()
	err := r.client.Ping(ctx).Err()
	metrics.RecordRedisOperation("ping", err)
	return err
}

// Close closes the Redis client
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) sessionKey(sessionID string) string {
	return r.keyPrefix + sessionID
}

func (r *RedisStore) monitorIndexKey(monitorID string) string {
	return r.keyPrefix + "index:monitor:" + monitorID
}
