// Package summarize decides when accumulated history should be compressed
// into a rolling digest, and produces that digest asynchronously.
//
// Summarization is best-effort by design: a failed cycle is logged and
// silently skipped, then retried on the next qualifying turn. The send path
// is never blocked and the stored message log is never modified; the digest
// only ever stands in for a prefix of messages at model-call time.
package summarize

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Consensys/ask-o11y-plugin-sub002/tokens"
	"github.com/Consensys/ask-o11y-plugin-sub002/transport"
	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// Sentinel errors for summarization.
var (
	// ErrNothingToSummarize indicates the eligible window was empty.
	ErrNothingToSummarize = errors.New("no messages to summarize")

	// ErrSummarizationFailed indicates the model call failed.
	ErrSummarizationFailed = errors.New("summarization failed")

	// ErrReadOnly indicates the session is in read-only (shared) mode.
	ErrReadOnly = errors.New("session is read-only")
)

// Default configuration values.
const (
	DefaultMessageThreshold = 30
	DefaultTokenThreshold   = 60000
	DefaultKeepRecent       = 10
	DefaultModel            = "claude-3-5-haiku-20241022"
	DefaultMaxTokens        = 2048
)

// Config holds summarization configuration.
type Config struct {
	// MessageThreshold triggers summarization once the history holds at
	// least this many messages. Zero disables the count trigger.
	// Default: 30
	MessageThreshold int

	// TokenThreshold triggers summarization once the history's estimated
	// token footprint reaches this size. Zero disables the size trigger.
	// Default: 60000
	TokenThreshold int

	// KeepRecent is the number of most recent messages excluded from the
	// digest. Default: 10
	KeepRecent int

	// Model is the model used for summarization. A fast, cheap model is
	// recommended. Default: "claude-3-5-haiku-20241022"
	Model string

	// MaxTokens bounds the digest response. Default: 2048
	MaxTokens int
}

// ApplyDefaults fills in zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.MessageThreshold == 0 {
		c.MessageThreshold = DefaultMessageThreshold
	}
	if c.TokenThreshold == 0 {
		c.TokenThreshold = DefaultTokenThreshold
	}
	if c.KeepRecent == 0 {
		c.KeepRecent = DefaultKeepRecent
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// Trigger owns the summarization lifecycle for one session.
type Trigger struct {
	cfg       Config
	completer transport.Completer
	est       *tokens.Estimator

	mu          sync.Mutex
	summarizing bool
	summary     string
	readOnly    bool

	// OnSummary, if set, is called with each new digest after it is
	// stored. Used to persist the digest on the session.
	OnSummary func(summary string)
}

// NewTrigger creates a Trigger. The completer may be wrapped with
// transport.WithTimeout by the caller; the trigger adds no timeout of its
// own.
func NewTrigger(completer transport.Completer, est *tokens.Estimator, cfg Config) *Trigger {
	cfg.ApplyDefaults()
	return &Trigger{
		cfg:       cfg,
		completer: completer,
		est:       est,
	}
}

// ShouldSummarize reports whether the history has crossed the message-count
// or token-size threshold. Both thresholds are checked independently.
func (t *Trigger) ShouldSummarize(messages []*types.Message) bool {
	if t.completer == nil || t.readOnlyNow() || len(messages) <= t.cfg.KeepRecent {
		return false
	}

	if t.cfg.MessageThreshold > 0 && len(messages) >= t.cfg.MessageThreshold {
		return true
	}
	if t.cfg.TokenThreshold > 0 {
		if t.est.CalculateContextTokens(messages, nil).TotalTokens >= t.cfg.TokenThreshold {
			return true
		}
	}
	return false
}

// IsSummarizing reports whether an async summarization call is outstanding.
func (t *Trigger) IsSummarizing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summarizing
}

// CurrentSummary returns the last produced digest, retained until
// superseded. Empty when no digest has been produced yet.
func (t *Trigger) CurrentSummary() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary
}

// SetCurrentSummary seeds the digest, e.g. when restoring a persisted
// session.
func (t *Trigger) SetCurrentSummary(summary string) {
	t.mu.Lock()
	t.summary = summary
	t.mu.Unlock()
}

// SetReadOnly marks the session read-only. Summarization never runs in
// read-only (shared) mode.
func (t *Trigger) SetReadOnly(readOnly bool) {
	t.mu.Lock()
	t.readOnly = readOnly
	t.mu.Unlock()
}

func (t *Trigger) readOnlyNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readOnly
}

// SummarizeAsync launches summarization in the background so the send path
// never blocks. At most one call is outstanding at a time; extra calls are
// dropped, reported by a false return. The in-flight flag is set before
// returning, so a true return means this exact snapshot is the one being
// digested. Failures are logged and silently skipped; the next qualifying
// turn retries.
func (t *Trigger) SummarizeAsync(ctx context.Context, messages []*types.Message) bool {
	t.mu.Lock()
	if t.summarizing || t.readOnly {
		t.mu.Unlock()
		return false
	}
	t.summarizing = true
	t.mu.Unlock()

	// Snapshot so in-place streaming growth cannot race the digest.
	snapshot := types.CloneMessages(messages)

	go func() {
		defer func() {
			t.mu.Lock()
			t.summarizing = false
			t.mu.Unlock()
		}()

		summary, err := t.summarize(ctx, snapshot)
		if err != nil {
			log.Printf("convomem/summarize: cycle skipped: %v", err)
			return
		}

		t.mu.Lock()
		t.summary = summary
		callback := t.OnSummary
		t.mu.Unlock()

		if callback != nil {
			callback(summary)
		}
	}()
	return true
}

// Summarize produces a digest synchronously. Most callers want
// SummarizeAsync; this entry point exists for explicit "compact now"
// actions and for tests.
func (t *Trigger) Summarize(ctx context.Context, messages []*types.Message) (string, error) {
	if t.readOnlyNow() {
		return "", ErrReadOnly
	}
	return t.summarize(ctx, types.CloneMessages(messages))
}

func (t *Trigger) summarize(ctx context.Context, messages []*types.Message) (string, error) {
	window := t.eligibleWindow(messages)
	if len(window) == 0 {
		return "", ErrNothingToSummarize
	}

	conversationText := FormatMessagesAsText(window)

	var userPrompt string
	if previous := t.CurrentSummary(); previous != "" {
		userPrompt = BuildUserPromptWithPrevious(previous, conversationText)
	} else {
		userPrompt = BuildUserPrompt(conversationText)
	}

	start := time.Now()
	stream, err := t.completer.SendCompletion(ctx,
		[]*types.Message{types.NewUserMessage(userPrompt)},
		nil,
		transport.Options{
			Model:     t.cfg.Model,
			MaxTokens: t.cfg.MaxTokens,
			System:    SystemPrompt,
		})
	if err != nil {
		return "", errors.Join(ErrSummarizationFailed, err)
	}

	summary, _, err := transport.CollectText(stream)
	if err != nil {
		return "", errors.Join(ErrSummarizationFailed, err)
	}
	if summary == "" {
		return "", errors.Join(ErrSummarizationFailed, errors.New("empty response from summarizer"))
	}

	log.Printf("convomem/summarize: digest produced in %s covering %d messages", time.Since(start).Round(time.Millisecond), len(window))
	return summary, nil
}

// eligibleWindow returns all but the KeepRecent newest messages, skipping a
// leading system message (it is carried verbatim, never digested).
func (t *Trigger) eligibleWindow(messages []*types.Message) []*types.Message {
	if len(messages) > 0 && messages[0].Role == types.RoleSystem {
		messages = messages[1:]
	}
	if len(messages) <= t.cfg.KeepRecent {
		return nil
	}
	return messages[:len(messages)-t.cfg.KeepRecent]
}
