package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maxpert/notifylist/cfg"
	"github.com/maxpert/notifylist/keyspace"
	"github.com/maxpert/notifylist/notify"
	goredis "github.com/redis/go-redis/v9"
)

// Store serves keyspace operations from an external Redis
type Store struct {
	client      *goredis.Client
	source      *Source
	pushTimeout time.Duration
}

var _ keyspace.Store = (*Store)(nil)

// Options configures a Store
type Options struct {
	Address                string
	Password               string
	DB                     int
	ConfigureNotifications bool
	PushTimeout            time.Duration
}

// OptionsFromConfig builds Options from the [redis] section
func OptionsFromConfig(c cfg.RedisConfiguration) Options {
	return Options{
		Address:                c.Address,
		Password:               c.Password,
		DB:                     c.DB,
		ConfigureNotifications: c.ConfigureNotifications,
		PushTimeout:            time.Duration(c.PushTimeoutMS) * time.Millisecond,
	}
}

// Open connects to Redis and checks the connection with PING.
func Open(ctx context.Context, opts Options) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Address, err)
	}

	if opts.PushTimeout <= 0 {
		opts.PushTimeout = time.Second
	}

	return &Store{
		client:      client,
		source:      NewSource(client, opts.DB, opts.ConfigureNotifications),
		pushTimeout: opts.PushTimeout,
	}, nil
}

// Client returns the underlying go-redis client
func (s *Store) Client() *goredis.Client {
	return s.client
}

func mapErr(err error) error {
	if err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return keyspace.ErrWrongType
	}
	return err
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return mapErr(s.client.Set(ctx, key, value, ttl).Err())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return v, true, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return s.client.Del(ctx, keys...).Result()
}

func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		n, err := s.client.Del(ctx, key).Result()
		return n > 0, err
	}
	return s.client.Expire(ctx, key, ttl).Result()
}

// TTL uses PTTL. go-redis reports -2 and -1 unscaled, which are TTLMissing and TTLNoExpiry.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.client.PTTL(ctx, key).Result()
}

func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	n, err := s.client.RPush(ctx, key, args...).Result()
	return n, mapErr(err)
}

func (s *Store) LPop(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.LPop(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, mapErr(err)
	}
	return v, true, nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, mapErr(err)
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	return n, mapErr(err)
}

// Push appends record to the destination list with RPUSH
func (s *Store) Push(destination string, record []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
	defer cancel()
	_, err := s.RPush(ctx, destination, record)
	return err
}

// Subscribe attaches handler to the server's keyevent notifications
func (s *Store) Subscribe(classes notify.Class, handler notify.Handler) (func(), error) {
	return s.source.Subscribe(classes, handler)
}

func (s *Store) Close() error {
	return s.client.Close()
}
