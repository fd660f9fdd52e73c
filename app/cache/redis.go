package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibast-solutions/ms-go-referral/app/entity"
	"github.com/vibast-solutions/ms-go-referral/config"
)

// RedisCache shares referral code entries between service instances.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

// fillScript sets KEYS[1] only while KEYS[2] still holds the caller's version.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if not current then current = '0' end
if current ~= ARGV[2] then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
return 1
`)

type cachedReferralCode struct {
	ID         uint64    `json:"id"`
	Code       string    `json:"code"`
	UserID     uint64    `json:"user_id"`
	ExpiryDate time.Time `json:"expiry_date"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// NewRedisClient connects to redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, userID uint64) (*entity.ReferralCode, bool, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry cachedReferralCode
	if err = json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("decode cached referral code: %w", err)
	}

	return &entity.ReferralCode{
		ID:         entry.ID,
		Code:       entry.Code,
		UserID:     entry.UserID,
		ExpiryDate: entry.ExpiryDate,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
	}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, code *entity.ReferralCode) error {
	data, err := encodeReferralCode(code)
	if err != nil {
		return err
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key(code.UserID), data, 0)
		pipe.Incr(ctx, c.versionKey(code.UserID))
		return nil
	})
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, userID uint64) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.key(userID))
		pipe.Incr(ctx, c.versionKey(userID))
		return nil
	})
	return err
}

func (c *RedisCache) Version(ctx context.Context, userID uint64) (uint64, error) {
	version, err := c.client.Get(ctx, c.versionKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

func (c *RedisCache) Fill(ctx context.Context, code *entity.ReferralCode, version uint64) (bool, error) {
	data, err := encodeReferralCode(code)
	if err != nil {
		return false, err
	}

	stored, err := fillScript.Run(ctx, c.client,
		[]string{c.key(code.UserID), c.versionKey(code.UserID)},
		data, strconv.FormatUint(version, 10),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

func (c *RedisCache) key(userID uint64) string {
	return fmt.Sprintf("%s:%d", c.prefix, userID)
}

func (c *RedisCache) versionKey(userID uint64) string {
	return fmt.Sprintf("%s:%d:version", c.prefix, userID)
}

func encodeReferralCode(code *entity.ReferralCode) ([]byte, error) {
	return json.Marshal(cachedReferralCode{
		ID:         code.ID,
		Code:       code.Code,
		UserID:     code.UserID,
		ExpiryDate: code.ExpiryDate,
		CreatedAt:  code.CreatedAt,
		UpdatedAt:  code.UpdatedAt,
	})
}
