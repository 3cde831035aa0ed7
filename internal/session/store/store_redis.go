package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/genialityco/gen-live-web-sub000/internal/session/models"
	id "github.com/genialityco/gen-live-web-sub000/pkg/domain"
	"github.com/genialityco/gen-live-web-sub000/pkg/platform/sentinel"
)

const (
	bindingKeyPrefix = "genlive:device:"
	maxWatchRetries  = 16
)

// Redis stores each binding as JSON under the device key, expiring with the
// session. AddEmail uses WATCH so concurrent associations are not lost.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
}

type RedisOption func(*Redis)

// WithDefaultTTL sets the expiry for bindings that carry no ExpiresAt.
func WithDefaultTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.defaultTTL = ttl
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, defaultTTL: 30 * 24 * time.Hour}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func bindingKey(device id.DeviceID) string {
	return bindingKeyPrefix + device.String()
}

func (r *Redis) Get(ctx context.Context, device id.DeviceID) (*models.Binding, error) {
	raw, err := r.client.Get(ctx, bindingKey(device)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get device binding: %w", err)
	}
	var b models.Binding
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode device binding: %w", err)
	}
	return &b, nil
}

func (r *Redis) Create(ctx context.Context, binding *models.Binding) error {
	raw, err := json.Marshal(binding)
	if err != nil {
		return fmt.Errorf("encode device binding: %w", err)
	}
	ok, err := r.client.SetNX(ctx, bindingKey(binding.DeviceID), raw, r.ttl(binding)).Result()
	if err != nil {
		return fmt.Errorf("create device binding: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	return nil
}

func (r *Redis) AddEmail(ctx context.Context, device id.DeviceID, email string) (*models.Binding, error) {
	key := bindingKey(device)
	var result *models.Binding

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var b models.Binding
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("decode device binding: %w", err)
		}
		result = &b
		if b.HasEmail(email) {
			return nil
		}
		b.Emails = append(b.Emails, email)
		updated, err := json.Marshal(&b)
		if err != nil {
			return fmt.Errorf("encode device binding: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("associate email: %w", err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("associate email: %w", sentinel.ErrConflict)
}

func (r *Redis) Delete(ctx context.Context, device id.DeviceID) error {
	if err := r.client.Del(ctx, bindingKey(device)).Err(); err != nil {
		return fmt.Errorf("delete device binding: %w", err)
	}
	return nil
}

func (r *Redis) ttl(b *models.Binding) time.Duration {
	if b.ExpiresAt.IsZero() {
		return r.defaultTTL
	}
	if ttl := time.Until(b.ExpiresAt); ttl > 0 {
		return ttl
	}
	return time.Second
}
