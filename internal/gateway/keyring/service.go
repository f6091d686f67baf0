package keyring

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

var (
	// ErrPoolExhausted means every credential in the pool has been marked
	// invalid. Terminal; not retried.
	ErrPoolExhausted = errors.New("no usable credentials in pool")
	// ErrNoPool means no pool is configured for the provider/model.
	ErrNoPool = errors.New("no credential pool for provider")
)

// CallFunc performs one upstream call with the given credential secret.
type CallFunc func(ctx context.Context, credential string) error

// Service selects credentials round-robin from per-(provider, model
// pattern) pools, persisting the cursor, and demotes credentials on
// classified auth/quota failures.
type Service struct {
	pools       []*Pool
	cursors     CursorStore
	classifiers map[string]Classifier
	centralized bool
}

// NewService builds the rotation service. When centralized is false, every
// call goes through the legacy plain round-robin path that never marks
// credentials invalid.
func NewService(pools []*Pool, cursors CursorStore, centralized bool) *Service {
	return &Service{
		pools:   pools,
		cursors: cursors,
		classifiers: map[string]Classifier{
			"google": GoogleClassifier{},
			"groq":   GroqClassifier{},
		},
		centralized: centralized,
	}
}

// poolFor returns the most specific pool matching (provider, model).
func (s *Service) poolFor(provider, model string) (*Pool, error) {
	var best *Pool
	for _, p := range s.pools {
		if p.Provider != provider || !models.MatchModelPattern(p.ModelPattern, model) {
			continue
		}
		if best == nil || len(p.ModelPattern) > len(best.ModelPattern) {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s (model %s)", ErrNoPool, provider, model)
	}
	return best, nil
}

func (s *Service) classifierFor(provider string) Classifier {
	if c, ok := s.classifiers[provider]; ok {
		return c
	}
	return GroqClassifier{}
}

// NextValidKey selects the next usable credential for (provider, model).
// Selection is the persisted cursor modulo the valid-subset size; the
// cursor never indexes past the shrinking valid set because the modulo is
// taken against the subset, not the full pool.
func (s *Service) NextValidKey(ctx context.Context, provider, model string) (Credential, error) {
	pool, err := s.poolFor(provider, model)
	if err != nil {
		return Credential{}, err
	}

	valid := pool.ValidCredentials()
	if len(valid) == 0 {
		return Credential{}, fmt.Errorf("%w: %s/%s", ErrPoolExhausted, provider, pool.ModelPattern)
	}

	cursorKey := provider + ":" + pool.ModelPattern
	idx, err := s.cursors.NextIndex(ctx, cursorKey, len(valid))
	if err != nil {
		return Credential{}, fmt.Errorf("rotation cursor: %w", err)
	}
	return valid[idx], nil
}

// MarkValid marks a credential valid in whichever pool owns it. Idempotent.
func (s *Service) MarkValid(id string) {
	for _, p := range s.pools {
		p.MarkValid(id)
	}
}

// MarkInvalid marks a credential invalid in whichever pool owns it.
// Idempotent.
func (s *Service) MarkInvalid(id string) {
	for _, p := range s.pools {
		p.MarkInvalid(id)
	}
}

// Execute runs fn with rotating credentials. Failures classified as auth or
// quota demote the credential and retry with the next one; anything else
// propagates unchanged. The loop is bounded by the pool size: each
// demotion shrinks the valid subset, and an empty subset surfaces as
// ErrPoolExhausted.
func (s *Service) Execute(ctx context.Context, provider, model string, fn CallFunc) error {
	if !s.centralized {
		return s.executeLegacy(ctx, provider, model, fn)
	}

	pool, err := s.poolFor(provider, model)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < pool.Size(); attempt++ {
		cred, err := s.NextValidKey(ctx, provider, model)
		if errors.Is(err, ErrPoolExhausted) {
			if lastErr != nil {
				return fmt.Errorf("%w: last failure: %v", ErrPoolExhausted, lastErr)
			}
			return err
		}
		if err != nil {
			// Cursor store failure, not exhaustion. Fall back to the
			// legacy path rather than refusing the call.
			log.Warn().Err(err).Str("provider", provider).Msg("centralized rotation unavailable, using legacy round-robin")
			return s.executeLegacy(ctx, provider, model, fn)
		}

		callErr := fn(ctx, cred.Secret)
		if callErr == nil {
			pool.MarkValid(cred.ID)
			return nil
		}

		kind := s.classifierFor(provider).Classify(callErr)
		if !kind.Rotates() {
			return callErr
		}

		log.Warn().
			Str("provider", provider).
			Str("credential", cred.ID).
			Str("kind", kind.String()).
			Err(callErr).
			Msg("credential demoted, rotating")
		pool.MarkInvalid(cred.ID)
		lastErr = callErr
	}

	if lastErr != nil {
		return fmt.Errorf("%w: last failure: %v", ErrPoolExhausted, lastErr)
	}
	return fmt.Errorf("%w: %s", ErrPoolExhausted, provider)
}

// executeLegacy is the fallback rotation path: plain round-robin over the
// full credential list, cursor in the durable counter store, no validity
// tracking and no retry.
func (s *Service) executeLegacy(ctx context.Context, provider, model string, fn CallFunc) error {
	pool, err := s.poolFor(provider, model)
	if err != nil {
		return err
	}

	creds := pool.AllCredentials()
	idx := 0
	if i, err := s.cursors.NextIndex(ctx, "legacy:"+provider, len(creds)); err == nil {
		idx = i
	}
	return fn(ctx, creds[idx].Secret)
}

// Snapshot returns per-provider pool status for the introspection endpoint.
func (s *Service) Snapshot() map[string][]PoolStatus {
	out := make(map[string][]PoolStatus)
	for _, p := range s.pools {
		out[p.Provider] = append(out[p.Provider], p.Status())
	}
	return out
}
