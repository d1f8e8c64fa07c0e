package redisstream

import (
	"fmt"

	"github.com/trickstertwo/xmediator"
)

// Use connects the publisher and panics on failure. Mirrors the xlog "Use"
// pattern: explicit construction for the common case.
//
// Example:
//
//	dp := redisstream.Use(redisstream.Config{
//	    Addr:         "localhost:6379",
//	    StreamPrefix: "events:",
//	})
//	pub, _ := xmediator.NewMediatorBuilder().
//	    WithDistributedInstance(dp).
//	    Build()
func Use(cfg Config) *Publisher {
	p, err := NewPublisher(cfg)
	if err != nil {
		panic(fmt.Errorf("redisstream.Use: %w", err))
	}
	return p
}

// UseWithBuilder wires the publisher into a builder by name, deferring
// connection to Build.
func UseWithBuilder(b *xmediator.MediatorBuilder, cfg Config) *xmediator.MediatorBuilder {
	return b.WithDistributed(PublisherName, cfg.toMap())
}
