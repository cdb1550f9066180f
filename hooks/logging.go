package hooks

import (
	"context"
	"log"

	"github.com/Consensys/ask-o11y-plugin-sub002/types"
)

// LoggingHooks provides built-in logging hooks for observability
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with default logger
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// BeforeTrim logs the window size before trimming
func (h *LoggingHooks) BeforeTrim(ctx context.Context, sessionID string, messages []*types.Message) error {
	h.logger.Printf("[convomem] Trimming context for session %s (%d messages)", sessionID, len(messages))
	return nil
}

// AfterTrim logs the trim outcome
func (h *LoggingHooks) AfterTrim(ctx context.Context, sessionID string, result *TrimResult) error {
	reduction := float64(0)
	if result.OriginalTokens > 0 {
		reduction = float64(result.OriginalTokens-result.TrimmedTokens) / float64(result.OriginalTokens) * 100
	}
	h.logger.Printf("[convomem] Trim complete for session %s: %d -> %d tokens (%.1f%% reduction, %d messages dropped, tier: %s)",
		sessionID, result.OriginalTokens, result.TrimmedTokens, reduction, result.MessagesDropped, result.Tier)
	return nil
}

// BeforeSummarize logs the start of a summarization cycle
func (h *LoggingHooks) BeforeSummarize(ctx context.Context, sessionID string) error {
	h.logger.Printf("[convomem] Starting summarization for session %s", sessionID)
	return nil
}

// AfterSummarize logs the completed digest size
func (h *LoggingHooks) AfterSummarize(ctx context.Context, sessionID string, summary string) error {
	h.logger.Printf("[convomem] Summarization complete for session %s (%d chars)", sessionID, len(summary))
	return nil
}

// SessionSaved logs persisted session sizes
func (h *LoggingHooks) SessionSaved(ctx context.Context, sessionID string, sizeBytes int) error {
	h.logger.Printf("[convomem] Saved session %s (%d bytes)", sessionID, sizeBytes)
	return nil
}

// MetricsHooks collects metrics for monitoring
type MetricsHooks struct {
	OnMetric func(name string, value float64, tags map[string]string)
}

// NewMetricsHooks creates metrics collection hooks
func NewMetricsHooks(onMetric func(string, float64, map[string]string)) *MetricsHooks {
	return &MetricsHooks{OnMetric: onMetric}
}

// AfterTrim records trim metrics
func (h *MetricsHooks) AfterTrim(ctx context.Context, sessionID string, result *TrimResult) error {
	tags := map[string]string{"tier": result.Tier}

	h.OnMetric("convomem.trim.original_tokens", float64(result.OriginalTokens), tags)
	h.OnMetric("convomem.trim.trimmed_tokens", float64(result.TrimmedTokens), tags)
	h.OnMetric("convomem.trim.messages_dropped", float64(result.MessagesDropped), tags)

	if result.OriginalTokens > 0 {
		h.OnMetric("convomem.trim.reduction_pct",
			float64(result.OriginalTokens-result.TrimmedTokens)/float64(result.OriginalTokens)*100, tags)
	}
	return nil
}

// SessionSaved records persisted session sizes
func (h *MetricsHooks) SessionSaved(ctx context.Context, sessionID string, sizeBytes int) error {
	h.OnMetric("convomem.session.saved_bytes", float64(sizeBytes), nil)
	return nil
}
