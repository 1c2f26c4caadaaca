// Package brandstore persists one brand profile per user.
//
// Profiles are validated on save and again on load, so a store never hands
// out a profile that Augment would misread.
package brandstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vr "github.com/ineyio/visionrouter"
)

// Store loads, saves and deletes brand profiles by user id.
type Store interface {
	// Load returns the user's profile, or nil when none is stored.
	Load(ctx context.Context, userID string) (*vr.BrandProfile, error)
	// Save validates and stores p, replacing any previous profile.
	Save(ctx context.Context, userID string, p *vr.BrandProfile) error
	// Delete removes the user's profile. Deleting a missing profile is not
	// an error.
	Delete(ctx context.Context, userID string) error
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId is required", vr.ErrInvalidInput)
	}
	return nil
}

// encode validates p and returns its JSON form.
func encode(p *vr.BrandProfile) ([]byte, error) {
	if err := vr.ValidateBrandProfile(p); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("visionrouter/brandstore: encode profile: %w", err)
	}
	return data, nil
}

// decode parses a stored profile and rejects one that no longer validates.
func decode(data []byte) (*vr.BrandProfile, error) {
	var p vr.BrandProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("visionrouter/brandstore: decode profile: %w", err)
	}
	if err := vr.ValidateBrandProfile(&p); err != nil {
		return nil, fmt.Errorf("visionrouter/brandstore: stored profile: %w", err)
	}
	return &p, nil
}

// Memory is an in-process Store. Profiles are kept in their JSON form so
// callers never share a pointer with the store.
type Memory struct {
	mu       sync.RWMutex
	profiles map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string][]byte)}
}

func (m *Memory) Load(_ context.Context, userID string) (*vr.BrandProfile, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.profiles[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decode(data)
}

func (m *Memory) Save(_ context.Context, userID string, p *vr.BrandProfile) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	data, err := encode(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.profiles[userID] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, userID string) error {
	if err := requireUser(userID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.profiles, userID)
	m.mu.Unlock()
	return nil
}
