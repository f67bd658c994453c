// Package session holds the per-user conversation state for the publishing
// workflow: a typed stage, the generated caption, and the ordered list of
// processed media artifacts. The registry is the single owner of session
// mutation; every change happens inside a per-user critical section.
package session

import (
	"sync"

	"github.com/m3rciful/carpostbot/internal/artifact"
)

// Stage identifies where a user is in the multi-turn publishing workflow.
type Stage string

const (
	// StageIdle indicates there is no active workflow pass.
	StageIdle Stage = "idle"
	// StageAwaitingSubject waits for the raw listing details text.
	StageAwaitingSubject Stage = "awaiting_subject"
	// StageAwaitingMedia waits for photos or the finalize command.
	StageAwaitingMedia Stage = "awaiting_media"
	// StageAwaitingTopic waits for a blog post topic.
	StageAwaitingTopic Stage = "awaiting_topic"
)

// Session stores one user's workflow state. ChatID and UserID are immutable
// after creation; everything else is mutated only via Registry.Update.
type Session struct {
	ChatID int64
	UserID int64

	Stage   Stage
	Caption string
	Media   []artifact.Handle

	// Epoch increments on every reset. Handlers capture it before a blocking
	// call; a result arriving under a different epoch is stale and discarded.
	Epoch uint64
}

// MediaCount returns the number of accepted artifacts.
func (s Session) MediaCount() int { return len(s.Media) }

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Registry maps user IDs to sessions and serializes all mutation per user.
// Events for different users never contend with each other.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]*entry)}
}

func (r *Registry) entryFor(userID int64) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		e = &entry{sess: &Session{UserID: userID, Stage: StageIdle}}
		r.entries[userID] = e
	}
	return e
}

// Update runs fn with exclusive access to the user's session. All session
// reads and writes from event handlers go through here, which is what makes
// photo N fully appended before photo N+1's handler can observe the session.
func (r *Registry) Update(userID int64, fn func(s *Session)) {
	e := r.entryFor(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.sess)
}

// Snapshot returns a copy of the session's scalar state plus a copy of the
// media slice, safe to use outside the critical section.
func (r *Registry) Snapshot(userID int64) Session {
	var snap Session
	r.Update(userID, func(s *Session) {
		snap = *s
		snap.Media = append([]artifact.Handle(nil), s.Media...)
	})
	return snap
}

// Stage returns the user's current stage.
func (r *Registry) Stage(userID int64) Stage {
	var st Stage
	r.Update(userID, func(s *Session) { st = s.Stage })
	return st
}

// Epoch returns the session's current epoch token.
func (r *Registry) Epoch(userID int64) uint64 {
	var ep uint64
	r.Update(userID, func(s *Session) { ep = s.Epoch })
	return ep
}

// InProgress reports whether the user has an active workflow pass.
func (r *Registry) InProgress(userID int64) bool {
	return r.Stage(userID) != StageIdle
}

// Begin resets the session for a fresh pass and enters the given stage.
// The previous pass's media handles are returned so the caller can release
// their storage outside the lock.
func (r *Registry) Begin(userID, chatID int64, st Stage) []artifact.Handle {
	var released []artifact.Handle
	r.Update(userID, func(s *Session) {
		released = s.Media
		s.ChatID = chatID
		s.Stage = st
		s.Caption = ""
		s.Media = nil
		s.Epoch++
	})
	return released
}

// Reset clears the session back to idle and returns the media handles the
// caller must release. Used by cancel.
func (r *Registry) Reset(userID int64) []artifact.Handle {
	return r.Begin(userID, 0, StageIdle)
}

// ResetIfEpoch clears the session only while its epoch still matches the
// given token. A mismatch means a newer pass owns the session, so the caller's
// result is stale and the session must be left alone. Returns the media
// handles to release and whether the reset was applied.
func (r *Registry) ResetIfEpoch(userID int64, epoch uint64) ([]artifact.Handle, bool) {
	var released []artifact.Handle
	applied := false
	r.Update(userID, func(s *Session) {
		if s.Epoch != epoch {
			return
		}
		applied = true
		released = s.Media
		s.Stage = StageIdle
		s.Caption = ""
		s.Media = nil
		s.Epoch++
	})
	return released, applied
}

// ActiveCount returns the number of sessions currently in a non-idle stage.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	n := 0
	for _, e := range entries {
		e.mu.Lock()
		if e.sess.Stage != StageIdle {
			n++
		}
		e.mu.Unlock()
	}
	return n
}
