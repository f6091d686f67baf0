package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTFB/forlifely-sub004/internal/gateway/cache"
	"github.com/GTFB/forlifely-sub004/internal/gateway/keyring"
	"github.com/GTFB/forlifely-sub004/internal/gateway/pricing"
	"github.com/GTFB/forlifely-sub004/internal/gateway/providers"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

// Task is one deferred unit of work: the actual upstream call for an
// accepted ask.
type Task struct {
	RequestID     string
	CorrelationID string
	AccountID     string
	Provider      string
	Model         string
	Input         providers.Input
	SubmittedAt   time.Time
}

// Store is the write contract the processor needs from the relational
// store.
type Store interface {
	InsertJournal(ctx context.Context, rec *models.JournalRecord) error
	AddUsage(ctx context.Context, accountID string, costUSD float64) error
}

// Processor performs the upstream call for a task and records the outcome
// exactly once.
type Processor struct {
	keys     *keyring.Service
	registry *providers.Registry
	cache    *cache.Cache
	pricing  *pricing.Table
	store    Store
}

// NewProcessor wires the processor.
func NewProcessor(keys *keyring.Service, registry *providers.Registry, c *cache.Cache, table *pricing.Table, store Store) *Processor {
	return &Processor{
		keys:     keys,
		registry: registry,
		cache:    c,
		pricing:  table,
		store:    store,
	}
}

// Process runs a task to its terminal state: provider call via key
// rotation, cost computation, exactly one journal row, cache population on
// success, and a usage increment regardless of outcome. The caller is
// billed for failed attempts too; that attempt-level billing is preserved
// behavior.
func (p *Processor) Process(ctx context.Context, t Task) *models.JournalRecord {
	start := time.Now()
	flattened := t.Input.Flatten()

	var result *providers.Result
	callErr := p.keys.Execute(ctx, t.Provider, t.Model, func(ctx context.Context, credential string) error {
		adapter := p.registry.ForRequest(t.Provider, t.Input)
		r, err := adapter.Generate(ctx, t.Model, t.Input, credential)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	rec := &models.JournalRecord{
		RequestID:       t.RequestID,
		CorrelationID:   t.CorrelationID,
		AccountID:       t.AccountID,
		Model:           t.Model,
		Provider:        t.Provider,
		LatencyMs:       int(time.Since(start).Milliseconds()),
		RequestSnapshot: requestSnapshot(t),
		CreatedAt:       time.Now().UTC(),
	}

	if callErr != nil {
		rec.Status = models.StatusError
		rec.Content = callErr.Error()
		msg := callErr.Error()
		rec.ErrorMessage = &msg
		rec.PromptTokens = pricing.EstimateTokens(flattened)
	} else {
		rec.Status = models.StatusSuccess
		rec.Content = result.Text
		rec.ResponseSnapshot = result.Text
		rec.PromptTokens = result.PromptTokens
		rec.CompletionTokens = result.CompletionTokens
		if t.Input.HasAudio() {
			rec.PromptTokens = pricing.EstimateAudioTokens(result.AudioSeconds)
		}
		if rec.PromptTokens == 0 && !t.Input.HasAudio() {
			rec.PromptTokens = pricing.EstimateTokens(flattened)
		}
		if rec.CompletionTokens == 0 {
			rec.CompletionTokens = pricing.EstimateTokens(result.Text)
		}
	}

	rec.CostUSD = p.pricing.Cost(ctx, t.Provider, t.Model, rec.PromptTokens, rec.CompletionTokens)

	if err := p.store.InsertJournal(ctx, rec); err != nil {
		log.Error().Err(err).Str("request_id", t.RequestID).Msg("failed to insert journal row")
	}

	if rec.Status == models.StatusSuccess {
		fp := cache.Fingerprint(t.Model, flattened)
		if err := p.cache.Set(ctx, fp, &cache.Entry{
			RequestID: t.RequestID,
			Model:     t.Model,
			Content:   rec.Content,
		}); err != nil {
			log.Warn().Err(err).Str("request_id", t.RequestID).Msg("failed to populate cache")
		}
	}

	if err := p.store.AddUsage(ctx, t.AccountID, rec.CostUSD); err != nil {
		log.Error().Err(err).Str("account", t.AccountID).Msg("failed to increment usage")
	}

	log.Info().
		Str("request_id", t.RequestID).
		Str("provider", t.Provider).
		Str("model", t.Model).
		Str("status", rec.Status).
		Float64("cost_usd", rec.CostUSD).
		Int("latency_ms", rec.LatencyMs).
		Msg("request processed")

	return rec
}

func requestSnapshot(t Task) string {
	snap := map[string]any{
		"model":    t.Model,
		"provider": t.Provider,
	}
	if t.Input.Prompt != "" {
		snap["prompt"] = t.Input.Prompt
	}
	if len(t.Input.Messages) > 0 {
		snap["messages"] = t.Input.Messages
	}
	if t.Input.HasAudio() {
		snap["audioBytes"] = len(t.Input.Audio)
		snap["audioFormat"] = t.Input.AudioFormat
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return ""
	}
	return string(data)
}
