package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTFB/forlifely-sub004/internal/gateway/cache"
	"github.com/GTFB/forlifely-sub004/internal/gateway/keyring"
	"github.com/GTFB/forlifely-sub004/internal/gateway/limiter"
	"github.com/GTFB/forlifely-sub004/internal/gateway/providers"
	"github.com/GTFB/forlifely-sub004/internal/gateway/tasks"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

// JournalReader is the journal read contract for the status/result
// endpoints.
type JournalReader interface {
	GetJournal(ctx context.Context, requestID, accountID string) (*models.JournalRecord, error)
}

// AskHandler serves the ask/upload submission endpoints and the journal
// read endpoints.
type AskHandler struct {
	journal      JournalReader
	cache        *cache.Cache
	guard        *limiter.Guard
	queue        *tasks.Queue
	processor    *tasks.Processor
	keys         *keyring.Service
	defaultModel string
}

func NewAskHandler(journal JournalReader, c *cache.Cache, guard *limiter.Guard, queue *tasks.Queue, processor *tasks.Processor, keys *keyring.Service, defaultModel string) *AskHandler {
	return &AskHandler{
		journal:      journal,
		cache:        c,
		guard:        guard,
		queue:        queue,
		processor:    processor,
		keys:         keys,
		defaultModel: defaultModel,
	}
}

type askRequest struct {
	Model       string              `json:"model"`
	Prompt      string              `json:"prompt"`
	Input       string              `json:"input"`
	Messages    []providers.Message `json:"messages"`
	Audio       string              `json:"audio"`
	AudioFormat string              `json:"audioFormat"`
	Stream      bool                `json:"stream"`
}

// parse normalizes the body into a provider input. `prompt` and `input`
// are synonyms; `audio` is base64.
func (req *askRequest) parse() (providers.Input, bool) {
	in := providers.Input{
		Prompt:      req.Prompt,
		Messages:    req.Messages,
		AudioFormat: req.AudioFormat,
	}
	if in.Prompt == "" {
		in.Prompt = req.Input
	}
	if req.Audio != "" {
		audio, err := base64.StdEncoding.DecodeString(req.Audio)
		if err != nil {
			return providers.Input{}, false
		}
		in.Audio = audio
	}
	if in.Prompt == "" && len(in.Messages) == 0 && len(in.Audio) == 0 {
		return providers.Input{}, false
	}
	return in, true
}

// gate runs the shared synchronous checks in order: permission, budget,
// rate limit. Each is a hard gate that short-circuits with its status
// code.
func (h *AskHandler) gate(w http.ResponseWriter, r *http.Request, acct *models.CallerAccount, model string) bool {
	if !acct.AllowsModel(model) {
		writeError(w, http.StatusForbidden, "model not permitted: "+model)
		return false
	}
	if err := h.guard.CheckBudget(acct); err != nil {
		writeError(w, http.StatusPaymentRequired, "monthly budget exceeded")
		return false
	}
	if err := h.guard.CheckRate(r.Context(), acct); err != nil {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

// HandleAsk handles POST /ask. The synchronous phase runs the gates and
// the cache check; the upstream call itself is handed to the task queue
// and the response returns immediately with a fresh request id.
func (h *AskHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input, ok := req.parse()
	if !ok {
		writeError(w, http.StatusBadRequest, "one of prompt, input, messages, or audio is required")
		return
	}

	model := req.Model
	if model == "" {
		model = h.defaultModel
	}

	if !h.gate(w, r, acct, model) {
		return
	}

	flattened := input.Flatten()
	fingerprint := cache.Fingerprint(model, flattened)
	if entry, err := h.cache.Get(r.Context(), fingerprint); err == nil {
		// Served from cache: same body shape as a computed result, no
		// scheduling, no new journal row.
		writeJSON(w, http.StatusOK, map[string]string{
			"requestId": entry.RequestID,
			"model":     entry.Model,
			"content":   entry.Content,
		})
		return
	}

	provider := providers.Classify(model, input.HasAudio())
	task := tasks.Task{
		RequestID:     "req_" + uuid.NewString(),
		CorrelationID: uuid.NewString(),
		AccountID:     acct.ID,
		Provider:      provider,
		Model:         model,
		Input:         input,
		SubmittedAt:   time.Now().UTC(),
	}

	if !h.queue.Enqueue(task) {
		writeError(w, http.StatusServiceUnavailable, "gateway busy, try again")
		return
	}

	log.Info().
		Str("request_id", task.RequestID).
		Str("account", acct.ID).
		Str("provider", provider).
		Str("model", model).
		Msg("ask accepted")

	writeJSON(w, http.StatusAccepted, map[string]string{"requestId": task.RequestID})
}

// HandleUpload handles POST /upload: the same gates as /ask, but the
// speech-to-text call runs synchronously and the response only carries the
// request id once processing has finished.
func (h *AskHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	input, ok := req.parse()
	if !ok || !input.HasAudio() {
		writeError(w, http.StatusBadRequest, "audio is required")
		return
	}

	model := req.Model
	if model == "" {
		model = providers.DefaultSpeechModel
	}

	if !h.gate(w, r, acct, model) {
		return
	}

	task := tasks.Task{
		RequestID:     "req_" + uuid.NewString(),
		CorrelationID: uuid.NewString(),
		AccountID:     acct.ID,
		Provider:      providers.ProviderGroq,
		Model:         model,
		Input:         input,
		SubmittedAt:   time.Now().UTC(),
	}

	rec := h.processor.Process(r.Context(), task)
	if rec.Status == models.StatusError {
		writeError(w, http.StatusInternalServerError, rec.Content)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"requestId": task.RequestID})
}
