// Package redisstream routes mediator events to Redis Streams, one stream
// per channel.
package redisstream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xmediator"
)

const PublisherName = "redis-streams"

func init() {
	if err := xmediator.RegisterDistributed(PublisherName, func(cfg map[string]any) (xmediator.DistributedPublisher, error) {
		return NewPublisher(ConfigFromMap(cfg))
	}); err != nil {
		panic(fmt.Errorf("xmediator: failed to register distributed publisher %q: %w", PublisherName, err))
	}
}

// Field constants (avoid typos/allocs)
const (
	fieldID         = "id"
	fieldType       = "type"
	fieldEvent      = "event" // full JSON projection of the event
	fieldProducedAt = "producedAt"
)

// Config for the Redis Streams publisher.
type Config struct {
	Addr          string
	Username      string
	Password      string
	DB            int
	TLS           bool
	TLSServerName string

	// StreamPrefix is prepended to the channel to form the stream key.
	StreamPrefix string
	// MaxLenApprox trims each stream approximately to this length (0 = no trim).
	MaxLenApprox int64
	// DialTimeout bounds the initial connectivity check.
	DialTimeout time.Duration
}

// Defaults returns a Config with production defaults.
func Defaults() Config {
	return Config{
		Addr:         "localhost:6379",
		StreamPrefix: "xmediator:",
		MaxLenApprox: 10000,
		DialTimeout:  5 * time.Second,
	}
}

// ConfigFromMap safely converts cfg into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}
	getInt64 := func(k string, d int64) int64 {
		switch v := cfg[k].(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
		return d
	}
	getBool := func(k string, d bool) bool {
		if v, ok := cfg[k].(bool); ok {
			return v
		}
		return d
	}
	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v)
		}
		return d
	}

	def := Defaults()
	return Config{
		Addr:          getString("addr", def.Addr),
		Username:      getString("username", ""),
		Password:      getString("password", ""),
		DB:            getInt("db", 0),
		TLS:           getBool("tls", false),
		TLSServerName: getString("tls_server_name", ""),
		StreamPrefix:  getString("stream_prefix", def.StreamPrefix),
		MaxLenApprox:  getInt64("max_len_approx", def.MaxLenApprox),
		DialTimeout:   getDur("dial_timeout", def.DialTimeout),
	}
}

// toMap converts typed Config into the generic map expected by the factory.
func (c Config) toMap() map[string]any {
	return map[string]any{
		"addr":            c.Addr,
		"username":        c.Username,
		"password":        c.Password,
		"db":              c.DB,
		"tls":             c.TLS,
		"tls_server_name": c.TLSServerName,
		"stream_prefix":   c.StreamPrefix,
		"max_len_approx":  c.MaxLenApprox,
		"dial_timeout":    c.DialTimeout,
	}
}

// Publisher implements xmediator.DistributedPublisher over Redis Streams.
type Publisher struct {
	cfg    Config
	client *redis.Client
}

var _ xmediator.DistributedPublisher = (*Publisher)(nil)

// NewPublisher connects to Redis and verifies connectivity.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{ServerName: cfg.TLSServerName, MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstream: ping %s: %w", cfg.Addr, err)
	}
	return &Publisher{cfg: cfg, client: client}, nil
}

// PublishToChannel appends the event to the channel's stream.
func (p *Publisher) PublishToChannel(ctx context.Context, channel string, e *xmediator.Event) error {
	if channel == "" {
		return fmt.Errorf("redisstream: channel must not be empty")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redisstream: encode event %s: %w", e.ID, err)
	}
	args := &redis.XAddArgs{
		Stream: p.cfg.StreamPrefix + channel,
		Values: map[string]any{
			fieldID:         e.ID,
			fieldType:       e.Type,
			fieldEvent:      data,
			fieldProducedAt: e.Timestamp.UnixNano(),
		},
	}
	if p.cfg.MaxLenApprox > 0 {
		args.MaxLen = p.cfg.MaxLenApprox
		args.Approx = true
	}
	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redisstream: xadd %s: %w", args.Stream, err)
	}
	return nil
}

// Close releases the Redis client.
func (p *Publisher) Close(_ context.Context) error {
	return p.client.Close()
}

// Client exposes the underlying client for tests and advanced callers.
func (p *Publisher) Client() *redis.Client { return p.client }
