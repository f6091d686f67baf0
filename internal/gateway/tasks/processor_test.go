package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GTFB/forlifely-sub004/internal/gateway/cache"
	"github.com/GTFB/forlifely-sub004/internal/gateway/keyring"
	"github.com/GTFB/forlifely-sub004/internal/gateway/pricing"
	"github.com/GTFB/forlifely-sub004/internal/gateway/providers"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

type memStore struct {
	mu      sync.Mutex
	journal []*models.JournalRecord
	usage   map[string]float64
}

func newMemStore() *memStore {
	return &memStore{usage: make(map[string]float64)}
}

func (s *memStore) InsertJournal(_ context.Context, rec *models.JournalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, rec)
	return nil
}

func (s *memStore) AddUsage(_ context.Context, accountID string, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[accountID] += costUSD
	return nil
}

func (s *memStore) rows() []*models.JournalRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.JournalRecord, len(s.journal))
	copy(out, s.journal)
	return out
}

type fakeProvider struct {
	name string
	fn   func(credential string) (*providers.Result, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, _ string, _ providers.Input, credential string) (*providers.Result, error) {
	return f.fn(credential)
}

func newTestProcessor(t *testing.T, google providers.Provider, secrets ...string) (*Processor, *memStore, *cache.Cache) {
	t.Helper()
	if len(secrets) == 0 {
		secrets = []string{"k1"}
	}
	pool, err := keyring.NewPool("google", "*", secrets)
	require.NoError(t, err)
	groqPool, err := keyring.NewPool("groq", "*", secrets)
	require.NoError(t, err)
	keys := keyring.NewService([]*keyring.Pool{pool, groqPool}, keyring.NewMemoryCursorStore(), true)

	if google == nil {
		google = &fakeProvider{name: "google", fn: func(string) (*providers.Result, error) {
			return &providers.Result{Text: "computed answer", PromptTokens: 5, CompletionTokens: 7}, nil
		}}
	}
	speech := &fakeProvider{name: "groq", fn: func(string) (*providers.Result, error) {
		return &providers.Result{Text: "transcribed words here", AudioSeconds: 30}, nil
	}}
	registry := providers.NewRegistryWith(google, google, speech)

	store := newMemStore()
	c := cache.New(nil, time.Minute, true)
	proc := NewProcessor(keys, registry, c, pricing.New(nil, nil), store)
	return proc, store, c
}

func baseTask() Task {
	return Task{
		RequestID:     "req_1",
		CorrelationID: "corr_1",
		AccountID:     "acct-1",
		Provider:      providers.ProviderGoogle,
		Model:         "gemini-2.5-flash",
		Input:         providers.Input{Prompt: "hi there"},
		SubmittedAt:   time.Now(),
	}
}

func TestProcessSuccess(t *testing.T) {
	proc, store, c := newTestProcessor(t, nil)

	rec := proc.Process(context.Background(), baseTask())

	require.Equal(t, models.StatusSuccess, rec.Status)
	require.Equal(t, "computed answer", rec.Content)
	require.Equal(t, 5, rec.PromptTokens)
	require.Equal(t, 7, rec.CompletionTokens)
	require.Greater(t, rec.CostUSD, 0.0)

	rows := store.rows()
	require.Len(t, rows, 1, "exactly one journal row per terminal ask")
	require.Equal(t, "req_1", rows[0].RequestID)
	require.InDelta(t, rec.CostUSD, store.usage["acct-1"], 1e-12, "usage incremented by exactly the computed cost")

	entry, err := c.Get(context.Background(), cache.Fingerprint("gemini-2.5-flash", "hi there"))
	require.NoError(t, err)
	require.Equal(t, "computed answer", entry.Content)
	require.Equal(t, "req_1", entry.RequestID)
}

func TestProcessFailureStillBillsAndJournals(t *testing.T) {
	boom := errors.New("upstream returned garbage")
	failing := &fakeProvider{name: "google", fn: func(string) (*providers.Result, error) {
		return nil, boom
	}}
	proc, store, c := newTestProcessor(t, failing)

	rec := proc.Process(context.Background(), baseTask())

	require.Equal(t, models.StatusError, rec.Status)
	require.Equal(t, boom.Error(), rec.Content, "error text is stored as content")
	require.NotNil(t, rec.ErrorMessage)

	rows := store.rows()
	require.Len(t, rows, 1)
	require.Equal(t, models.StatusError, rows[0].Status)

	// Failed attempts are billed too.
	require.Greater(t, rec.CostUSD, 0.0)
	require.InDelta(t, rec.CostUSD, store.usage["acct-1"], 1e-12)

	// Failures never populate the cache.
	_, err := c.Get(context.Background(), cache.Fingerprint("gemini-2.5-flash", "hi there"))
	require.ErrorIs(t, err, cache.ErrMiss)
}

func TestProcessRotatesThroughBadCredentials(t *testing.T) {
	flaky := &fakeProvider{name: "google", fn: func(credential string) (*providers.Result, error) {
		if credential == "bad" {
			return nil, fmt.Errorf("API key not valid")
		}
		return &providers.Result{Text: "ok"}, nil
	}}
	proc, store, _ := newTestProcessor(t, flaky, "bad", "good")

	rec := proc.Process(context.Background(), baseTask())

	require.Equal(t, models.StatusSuccess, rec.Status)
	require.Len(t, store.rows(), 1, "credential retries happen before journaling, not after")
}

func TestProcessPoolExhaustionJournalsError(t *testing.T) {
	failing := &fakeProvider{name: "google", fn: func(string) (*providers.Result, error) {
		return nil, fmt.Errorf("API key not valid")
	}}
	proc, store, _ := newTestProcessor(t, failing, "k1", "k2")

	rec := proc.Process(context.Background(), baseTask())

	require.Equal(t, models.StatusError, rec.Status)
	require.Contains(t, rec.Content, "no usable credentials")
	require.Len(t, store.rows(), 1)
}

func TestProcessAudioUsesDurationEstimate(t *testing.T) {
	proc, store, _ := newTestProcessor(t, nil)

	task := baseTask()
	task.Provider = providers.ProviderGroq
	task.Model = "whisper-large-v3"
	task.Input = providers.Input{Audio: []byte("fake audio bytes"), AudioFormat: "mp3"}

	rec := proc.Process(context.Background(), task)

	require.Equal(t, models.StatusSuccess, rec.Status)
	require.Equal(t, 30, rec.PromptTokens, "audio prompt tokens come from the duration estimate")
	require.Equal(t, 3, rec.CompletionTokens, "completion tokens fall back to transcript word count")
	require.Len(t, store.rows(), 1)
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	proc, store, _ := newTestProcessor(t, nil)
	q := NewQueue(proc, 2, 16)

	for i := 0; i < 5; i++ {
		task := baseTask()
		task.RequestID = fmt.Sprintf("req_%d", i)
		require.True(t, q.Enqueue(task))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))
	require.Len(t, store.rows(), 5, "accepted tasks must be journaled before shutdown completes")

	require.False(t, q.Enqueue(baseTask()), "a stopped queue rejects new work")
}
