package kvstore

import (
	"context"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"
)

// Redis configures the connection pool the store dials. Field names mirror
// the teacher registry's own Redis configuration block so the surrounding
// YAML stays familiar to anyone who has operated a distribution-shaped
// service before.
type Redis struct {
	// Addr is the host:port of the redis instance backing the store.
	Addr string `yaml:"addr,omitempty"`

	// Username enables redis 6+ ACL-based auth.
	Username string `yaml:"username,omitempty"`

	// Password authenticates the connection when set.
	Password string `yaml:"password,omitempty"`

	// DB selects the logical redis database.
	DB int `yaml:"db,omitempty"`

	TLS struct {
		Enabled bool `yaml:"enabled,omitempty"`
	} `yaml:"tls,omitempty"`

	DialTimeout  time.Duration `yaml:"dialtimeout,omitempty"`
	ReadTimeout  time.Duration `yaml:"readtimeout,omitempty"`
	WriteTimeout time.Duration `yaml:"writetimeout,omitempty"`

	Pool struct {
		MaxIdle     int           `yaml:"maxidle,omitempty"`
		MaxActive   int           `yaml:"maxactive,omitempty"`
		IdleTimeout time.Duration `yaml:"idletimeout,omitempty"`
	} `yaml:"pool,omitempty"`
}

// DecodeRedisParams patches base with a loosely-typed parameters map, the
// same way the teacher's redis cache provider (registry/storage/cache/redis)
// decodes its own freeform Parameters block into a concrete Redis struct:
// WeaklyTypedInput so values arriving as strings (CLI flags, environment
// blobs) coerce into ints/bools, and a decode hook so "5s"-style strings
// land in the time.Duration fields.
func DecodeRedisParams(overrides map[string]interface{}, base Redis) (Redis, error) {
	if len(overrides) == 0 {
		return base, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &base,
	})
	if err != nil {
		return Redis{}, err
	}
	if err := dec.Decode(overrides); err != nil {
		return Redis{}, err
	}
	return base, nil
}

// NewClient builds a redis client per cfg that pings each new connection as
// it is established. The client dials lazily, so a misconfigured address
// surfaces on the first command, not when NewClient returns.
func NewClient(cfg Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			return cn.Ping(ctx).Err()
		},
		Username:        cfg.Username,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		MaxIdleConns:    cfg.Pool.MaxIdle,
		PoolSize:        cfg.Pool.MaxActive,
		ConnMaxIdleTime: cfg.Pool.IdleTimeout,
	})
}
