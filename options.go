package convomem

import (
	"github.com/Consensys/ask-o11y-plugin-sub002/hooks"
	"github.com/Consensys/ask-o11y-plugin-sub002/share"
	"github.com/Consensys/ask-o11y-plugin-sub002/tokens"
)

// Option is a functional option for configuring an Engine
type Option func(*Engine) error

// WithHooks attaches a hook registry for lifecycle observability
func WithHooks(registry *hooks.Registry) Option {
	return func(e *Engine) error {
		e.hooks = registry
		return nil
	}
}

// WithEncoder overrides the token encoder, bypassing the Encoding config
func WithEncoder(enc tokens.Encoder) Option {
	return func(e *Engine) error {
		e.est = tokens.NewEstimator(enc)
		return nil
	}
}

// WithShareStore enables sharing, persisting snapshots in the given store.
// Use share.NewKVStore for single-node setups or share.NewPostgresStore when
// links must resolve from any node.
func WithShareStore(store share.Store) Option {
	return func(e *Engine) error {
		e.shares = share.NewManager(store, e.store)
		return nil
	}
}
