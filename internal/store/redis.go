package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cumplo-spotter/cumplo-spotter/internal/users"
)

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordFile string `mapstructure:"password-file"`
	DB           int    `mapstructure:"db"`
	Prefix       string `mapstructure:"prefix"`
}

// NewRedisClient connects to redis and checks the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Redis stores users as a json profile plus one hash for configurations and one for notifications.
//
//	{prefix}users                          set of user ids
//	{prefix}user:{id}                      profile
//	{prefix}user:{id}:configurations       configuration id -> json
//	{prefix}user:{id}:notifications        funding request id -> RFC 3339 date
//	{prefix}api-key:{key}                  user id
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: KeyPrefix(prefix)}
}

// KeyPrefix returns prefix terminated by a colon so that keys built on it stay namespaced.
// An empty prefix stays empty.
func KeyPrefix(prefix string) string {
	if prefix == "" || strings.HasSuffix(prefix, ":") {
		return prefix
	}
	return prefix + ":"
}

func (r *Redis) usersKey() string { return r.prefix + "users" }
func (r *Redis) userKey(id string) string { return r.prefix + "user:" + id }
func (r *Redis) configurationsKey(id string) string { return r.userKey(id) + ":configurations" }
func (r *Redis) notificationsKey(id string) string { return r.userKey(id) + ":notifications" }
func (r *Redis) apiKeyKey(key string) string { return r.prefix + "api-key:" + key }

func (r *Redis) GetUser(ctx context.Context, id string) (*users.User, error) {
	pipe := r.client.Pipeline()
	profileCmd := pipe.Get(ctx, r.userKey(id))
	configurationsCmd := pipe.HGetAll(ctx, r.configurationsKey(id))
	notificationsCmd := pipe.HGetAll(ctx, r.notificationsKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	data, err := profileCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	var p profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	u := p.user()

	for field, value := range configurationsCmd.Val() {
		var cfg users.Configuration
		if err := json.Unmarshal([]byte(value), &cfg); err != nil {
			return nil, fmt.Errorf("decode configuration %s of user %s: %w", field, id, err)
		}
		u.Configurations[cfg.ID] = &cfg
	}

	for field, value := range notificationsCmd.Val() {
		fundingRequestID, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("decode notification %s of user %s: %w", field, id, err)
		}
		date, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("decode notification %s of user %s: %w", field, id, err)
		}
		u.Notifications[fundingRequestID] = users.Notification{FundingRequestID: fundingRequestID, Date: date}
	}

	return u, nil
}

func (r *Redis) GetUserByAPIKey(ctx context.Context, apiKey string) (*users.User, error) {
	if apiKey == "" {
		return nil, ErrUserNotFound
	}
	id, err := r.client.Get(ctx, r.apiKeyKey(apiKey)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by api key %s: %w", users.SecureAPIKey(apiKey), err)
	}
	return r.GetUser(ctx, id)
}

func (r *Redis) ListUsers(ctx context.Context) ([]*users.User, error) {
	ids, err := r.client.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	sort.Strings(ids)

	list := make([]*users.User, 0, len(ids))
	for _, id := range ids {
		u, err := r.GetUser(ctx, id)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		list = append(list, u)
	}
	return list, nil
}

// SaveUser replaces the profile and the configurations of the user. Notifications are kept.
func (r *Redis) SaveUser(ctx context.Context, u *users.User) error {
	data, err := json.Marshal(profileOf(u))
	if err != nil {
		return err
	}

	configurations := make(map[string]any, len(u.Configurations))
	for id, cfg := range u.Configurations {
		if cfg == nil {
			continue
		}
		encoded, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode configuration %d: %w", id, err)
		}
		configurations[strconv.Itoa(id)] = encoded
	}

	var previous profile
	if old, err := r.client.Get(ctx, r.userKey(u.ID)).Bytes(); err == nil {
		_ = json.Unmarshal(old, &previous)
	} else if !errors.Is(err, redis.Nil) {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.userKey(u.ID), data, 0)
		pipe.SAdd(ctx, r.usersKey(), u.ID)
		if previous.APIKey != "" && previous.APIKey != u.APIKey {
			pipe.Del(ctx, r.apiKeyKey(previous.APIKey))
		}
		if u.APIKey != "" {
			pipe.Set(ctx, r.apiKeyKey(u.APIKey), u.ID, 0)
		}
		pipe.Del(ctx, r.configurationsKey(u.ID))
		if len(configurations) > 0 {
			pipe.HSet(ctx, r.configurationsKey(u.ID), configurations)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (r *Redis) SetNotificationDate(ctx context.Context, userID string, fundingRequestID int, date time.Time) error {
	err := r.client.HSet(ctx, r.notificationsKey(userID), strconv.Itoa(fundingRequestID), date.UTC().Format(time.RFC3339Nano)).Err()
	if err != nil {
		return fmt.Errorf("set notification %d of user %s: %w", fundingRequestID, userID, err)
	}
	return nil
}

func (r *Redis) DeleteNotification(ctx context.Context, userID string, fundingRequestID int) error {
	if err := r.client.HDel(ctx, r.notificationsKey(userID), strconv.Itoa(fundingRequestID)).Err(); err != nil {
		return fmt.Errorf("delete notification %d of user %s: %w", fundingRequestID, userID, err)
	}
	return nil
}
