package keyring

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// Credential is one provider API key. Validity is runtime state owned by
// the rotation service; secrets come from configuration and are never
// created at runtime.
type Credential struct {
	ID         string
	Secret     string
	Valid      bool
	LastGoodAt time.Time
}

// Pool is the set of credentials for one (provider, model pattern) pair.
// A pool is never constructed empty.
type Pool struct {
	Provider     string
	ModelPattern string

	mu    sync.RWMutex
	creds []Credential
}

// NewPool builds a pool from raw secrets. Credential ids are derived from
// an FNV-1a hash of the secret; the hash is for identification and logging
// only, not for security comparison.
func NewPool(provider, modelPattern string, secrets []string) (*Pool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("pool %s/%s: at least one credential is required", provider, modelPattern)
	}
	if modelPattern == "" {
		modelPattern = "*"
	}

	creds := make([]Credential, len(secrets))
	for i, secret := range secrets {
		creds[i] = Credential{
			ID:     credentialID(secret),
			Secret: secret,
			Valid:  true,
		}
	}

	return &Pool{
		Provider:     provider,
		ModelPattern: modelPattern,
		creds:        creds,
	}, nil
}

func credentialID(secret string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))[:8]
}

// Size returns the total number of credentials, valid or not.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.creds)
}

// ValidCredentials returns copies of the credentials currently marked valid,
// in pool order.
func (p *Pool) ValidCredentials() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Credential
	for _, c := range p.creds {
		if c.Valid {
			out = append(out, c)
		}
	}
	return out
}

// AllCredentials returns copies of every credential regardless of validity.
// The legacy rotation path rotates over this list.
func (p *Pool) AllCredentials() []Credential {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Credential, len(p.creds))
	copy(out, p.creds)
	return out
}

// MarkValid marks a credential as valid and stamps its last-known-good
// time. Marking an already-valid credential is a no-op apart from the
// timestamp refresh.
func (p *Pool) MarkValid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.creds[i].ID == id {
			p.creds[i].Valid = true
			p.creds[i].LastGoodAt = time.Now()
			return
		}
	}
}

// MarkInvalid demotes a credential. Marking an already-invalid credential
// is a no-op.
func (p *Pool) MarkInvalid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.creds {
		if p.creds[i].ID == id {
			p.creds[i].Valid = false
			return
		}
	}
}

// CredentialStatus is the introspection view of one credential.
type CredentialStatus struct {
	ID         string     `json:"id"`
	Valid      bool       `json:"valid"`
	LastGoodAt *time.Time `json:"lastGoodAt,omitempty"`
}

// PoolStatus is the introspection view of one pool.
type PoolStatus struct {
	ModelPattern string             `json:"modelPattern"`
	Total        int                `json:"total"`
	Valid        int                `json:"valid"`
	Credentials  []CredentialStatus `json:"credentials"`
}

// Status returns a point-in-time snapshot of the pool.
func (p *Pool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PoolStatus{
		ModelPattern: p.ModelPattern,
		Total:        len(p.creds),
		Credentials:  make([]CredentialStatus, 0, len(p.creds)),
	}
	for _, c := range p.creds {
		cs := CredentialStatus{ID: c.ID, Valid: c.Valid}
		if !c.LastGoodAt.IsZero() {
			t := c.LastGoodAt
			cs.LastGoodAt = &t
		}
		if c.Valid {
			st.Valid++
		}
		st.Credentials = append(st.Credentials, cs)
	}
	return st
}
