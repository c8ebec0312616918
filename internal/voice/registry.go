// internal/voice/registry.go
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call is one active telephony stream bound to a session. The form data
// here is an in-call working copy; the session store is the durable owner.
type Call struct {
	SessionID    string
	StreamSID    string
	FormData     map[string]string
	BoundAt      time.Time
	LastActivity time.Time
}

// Registry is the arena of active calls, owned exclusively by the voice
// orchestrator. Entries are evicted on disconnect and swept by TTL so a
// stuck transport cannot leak them.
type Registry struct {
	mu    sync.Mutex
	calls map[string]*Call
	ttl   time.Duration
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		calls: make(map[string]*Call),
		ttl:   ttl,
	}
}

// Bind registers a call for the session. Binding is one-shot: a session
// already bound to an active call cannot be bound again.
func (r *Registry) Bind(sessionID, streamSID string) (*Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.calls[sessionID]; exists {
		return nil, fmt.Errorf("session %s is already bound to an active call", sessionID)
	}
	now := time.Now()
	call := &Call{
		SessionID:    sessionID,
		StreamSID:    streamSID,
		FormData:     make(map[string]string),
		BoundAt:      now,
		LastActivity: now,
	}
	r.calls[sessionID] = call
	return call, nil
}

// Get returns the active call for a session, if any.
func (r *Registry) Get(sessionID string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[sessionID]
	return call, ok
}

// SetField records a collected field on the call's working copy.
func (r *Registry) SetField(sessionID, field, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if call, ok := r.calls[sessionID]; ok {
		call.FormData[field] = value
		call.LastActivity = time.Now()
	}
}

// FormData returns a copy of the call's collected fields.
func (r *Registry) FormData(sessionID string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	call, ok := r.calls[sessionID]
	if !ok {
		return nil
	}
	copied := make(map[string]string, len(call.FormData))
	for k, v := range call.FormData {
		copied[k] = v
	}
	return copied
}

// Remove evicts the session's call entry.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.calls, sessionID)
}

// Len reports the number of active calls.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// Sweep evicts entries idle longer than the TTL and returns how many were
// removed.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, call := range r.calls {
		if now.Sub(call.LastActivity) > r.ttl {
			delete(r.calls, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs a periodic TTL sweep until ctx is canceled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
