/*
Package presence tracks which identities are online.

The Registry maps each identity to the set of live connection handles it owns. An identity
is present while it holds at least one handle. Every change to the mapping is followed by a
getOnlineUsers broadcast of the full roster to every registered handle.
*/
package presence

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/metrics"
	"dmchat/internal/pkg/logx"
)

// EventOnlineUsers is the event carrying the full list of present identity ids.
const EventOnlineUsers = "getOnlineUsers"

// Handle is a live connection as seen by the registry.
// Send must not block and must not call back into the registry.
type Handle interface {
	ID() string
	UserID() string
	Send(event string, payload any) error
}

// Registry is the authoritative identity → handles mapping. The zero value is not usable;
// construct it with NewRegistry and pass it to whoever needs it.
type Registry struct {
	// mu serializes mutations; broadcasts run while it is held so that every handle
	// receives roster snapshots in mutation order.
	mu sync.RWMutex

	// byUser maps identity id → handle id → handle.
	byUser map[string]map[string]Handle

	// owners maps handle id → identity id, for Deregister.
	owners map[string]string

	recorder metrics.Recorder
	logger   zerolog.Logger
}

// NewRegistry returns an empty Registry. A nil recorder disables metrics.
func NewRegistry(recorder metrics.Recorder) *Registry {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Registry{
		byUser:   make(map[string]map[string]Handle),
		owners:   make(map[string]string),
		recorder: recorder,
		logger:   logx.Component("PresenceRegistry"),
	}
}

// Register adds h under userID. Registering an already registered handle changes nothing.
func (r *Registry) Register(userID string, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[h.ID()]; ok {
		return
	}

	handles, ok := r.byUser[userID]
	if !ok {
		handles = make(map[string]Handle)
		r.byUser[userID] = handles
	}
	handles[h.ID()] = h
	r.owners[h.ID()] = userID

	r.logger.Debug().
		Str("user_id", userID).
		Str("conn_id", h.ID()).
		Int("user_connections", len(handles)).
		Msg("Connection registered.")

	r.changedLocked()
}

// Deregister removes h from its owner. The owner leaves the present set together with its
// last handle. Unknown handles are ignored.
func (r *Registry) Deregister(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owners[h.ID()]
	if !ok {
		return
	}

	delete(r.owners, h.ID())

	handles := r.byUser[userID]
	delete(handles, h.ID())
	if len(handles) == 0 {
		delete(r.byUser, userID)
	}

	r.logger.Debug().
		Str("user_id", userID).
		Str("conn_id", h.ID()).
		Int("user_connections", len(handles)).
		Msg("Connection deregistered.")

	r.changedLocked()
}

// IsPresent reports whether userID holds at least one handle.
func (r *Registry) IsPresent(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byUser[userID]) > 0
}

// ConnectionsFor returns the handles owned by userID, possibly none.
func (r *Registry) ConnectionsFor(userID string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := r.byUser[userID]
	out := make([]Handle, 0, len(handles))
	for _, h := range handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })

	return out
}

// SnapshotPresentIDs returns the sorted ids of every present identity.
func (r *Registry) SnapshotPresentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []string {
	ids := make([]string, 0, len(r.byUser))
	for id := range r.byUser {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// changedLocked records metrics and broadcasts the roster. Callers hold r.mu.
func (r *Registry) changedLocked() {
	r.recorder.PresenceChanged(len(r.byUser), len(r.owners))
	r.recorder.PresenceBroadcast()

	snapshot := r.snapshotLocked()

	for _, handles := range r.byUser {
		for _, h := range handles {
			if err := h.Send(EventOnlineUsers, snapshot); err != nil {
				r.logger.Debug().Err(err).
					Str("conn_id", h.ID()).
					Msg("Skipping roster broadcast to unavailable connection.")
			}
		}
	}
}

// SendSnapshot sends the current roster to h alone. It holds the read lock while enqueueing,
// so no later mutation's broadcast can reach h before this snapshot does.
func (r *Registry) SendSnapshot(h Handle) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return h.Send(EventOnlineUsers, r.snapshotLocked())
}
