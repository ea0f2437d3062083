package session

import (
	"context"
	"encoding/json"
	"time"

	"puls_survey/internal/model"
	"puls_survey/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const redisKeyPrefix = "puls:session:"

// RedisStore 以 hash 保存一个会话，多台 kiosk 共享 redis 时使用
// 过期时间取 access_token 的 exp，没有时使用 ttl
type RedisStore struct {
	client *redis.Client
	id     string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		id:     uuid.NewString(),
		ttl:    ttl,
		now:    time.Now,
	}
}

// ID 会话 id，用于日志关联
func (r *RedisStore) ID() string { return r.id }

func (r *RedisStore) key() string { return redisKeyPrefix + r.id }

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.HGet(ctx, r.key(), key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if key != KeyLoginData {
		return r.client.HSet(ctx, r.key(), key, value).Err()
	}

	// 过期时间只在写入登录数据时设置，后续写入不延长会话
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.key(), key, value)
		p.Expire(ctx, r.key(), r.ttlFor(value))
		return nil
	})
	return err
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.HDel(ctx, r.key(), key).Err()
}

// Clear 删除整个会话并更换 id，旧 id 不再可用
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return err
	}
	r.id = uuid.NewString()
	return nil
}

func (r *RedisStore) ttlFor(loginData []byte) time.Duration {
	var sess model.Session
	if err := json.Unmarshal(loginData, &sess); err != nil {
		return r.ttl
	}
	exp, ok := util.TokenExpiry(sess.AccessToken)
	if !ok {
		return r.ttl
	}
	if d := exp.Sub(r.now()); d > 0 {
		return d
	}
	// 令牌已过期，保留一分钟以便提示用户重新登录
	return time.Minute
}
