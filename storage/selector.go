package storage

import "sync"

// Selector picks the single authoritative remote backend. The choice is
// recomputed on every call since settings can change at runtime.
type Selector struct {
	sharedAPI *SharedAPI
	drive     *Drive

	mu        sync.RWMutex
	fallbacks []Adapter
}

// NewSelector wires the primary remotes. Either may be nil.
func NewSelector(sharedAPI *SharedAPI, drive *Drive, fallbacks ...Adapter) *Selector {
	return &Selector{sharedAPI: sharedAPI, drive: drive, fallbacks: fallbacks}
}

// SetFallbacks replaces the opt-in backends tried after shared API and Drive.
func (s *Selector) SetFallbacks(fallbacks ...Adapter) {
	s.mu.Lock()
	s.fallbacks = fallbacks
	s.mu.Unlock()
}

// Active returns the remote backend to use now, or nil for local-only mode.
// Shared API wins over Drive; opt-in fallbacks are tried in order after both.
func (s *Selector) Active() Adapter {
	if s.sharedAPI != nil && s.sharedAPI.IsAvailable() {
		return s.sharedAPI
	}
	if s.drive != nil && s.drive.IsAvailable() {
		return s.drive
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.fallbacks {
		if a != nil && a.IsAvailable() {
			return a
		}
	}
	return nil
}

// SharedAPI returns the shared API adapter, which also serves the user list.
func (s *Selector) SharedAPI() *SharedAPI { return s.sharedAPI }

// Drive returns the Drive adapter.
func (s *Selector) Drive() *Drive { return s.drive }
