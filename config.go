package convomem

import (
	"fmt"

	"github.com/Consensys/ask-o11y-plugin-sub002/autosave"
	"github.com/Consensys/ask-o11y-plugin-sub002/storage"
	"github.com/Consensys/ask-o11y-plugin-sub002/summarize"
	"github.com/Consensys/ask-o11y-plugin-sub002/transport"
	"github.com/Consensys/ask-o11y-plugin-sub002/trim"
)

// DefaultModel is the conversation model assumed when none is configured.
const DefaultModel = "claude-sonnet-4-5-20250929"

// DefaultEncoding is the tiktoken encoding used for token estimation.
const DefaultEncoding = "cl100k_base"

// Config holds the required configuration for an Engine.
//
// Example:
//
//	kv, _ := storage.NewSQLiteKV(path)
//	engine, _ := convomem.New(convomem.Config{
//	    KV:       kv,
//	    TenantID: "tenant-1",
//	    Model:    "claude-sonnet-4-5-20250929",
//	})
type Config struct {
	// KV is the persistence backend (required)
	KV storage.KV

	// TenantID isolates this engine's sessions from other tenants (required)
	TenantID string

	// Model is the conversation model whose context budget applies.
	// Default: "claude-sonnet-4-5-20250929"
	Model string

	// Encoding is the tiktoken encoding for token estimation. Set to
	// "approximate" to skip the tokenizer and use the chars/4 heuristic.
	// Default: "cl100k_base"
	Encoding string

	// Completer sends summarization requests. Nil disables background
	// summarization; everything else keeps working.
	Completer transport.Completer

	// Trim configures the tiered context trimmer.
	Trim trim.Config

	// Summarize configures the summarization trigger.
	Summarize summarize.Config

	// Store configures session quotas and eviction.
	Store storage.Config

	// Autosave configures debounced persistence.
	Autosave autosave.Config
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	c.Trim.ApplyDefaults()
	c.Summarize.ApplyDefaults()
	c.Store.ApplyDefaults()
	c.Autosave.ApplyDefaults()
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.KV == nil {
		return fmt.Errorf("%w: KV is required", ErrInvalidConfig)
	}
	if c.TenantID == "" {
		return fmt.Errorf("%w: TenantID is required", ErrInvalidConfig)
	}
	if err := c.Trim.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
