package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionPolicy decides which sessions to keep.
type RetentionPolicy interface {
	Apply(sessions []Session) (keep []Session)
}

// CountPolicy keeps the N most recent sessions.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount sessions (assumed sorted newest-first).
func (p *CountPolicy) Apply(sessions []Session) []Session {
	if len(sessions) <= p.MaxCount {
		return sessions
	}
	return sessions[:p.MaxCount]
}

// AgePolicy keeps sessions started within MaxAge.
type AgePolicy struct {
	MaxAge time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Apply keeps sessions whose StartedAt is within MaxAge of now.
func (p *AgePolicy) Apply(sessions []Session) []Session {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	cutoff := now().Add(-p.MaxAge)

	var keep []Session
	for _, s := range sessions {
		if s.StartedAt.After(cutoff) {
			keep = append(keep, s)
		}
	}
	return keep
}

// CompositePolicy keeps a session if ANY sub-policy wants it (union).
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of sessions kept by any sub-policy.
func (p *CompositePolicy) Apply(sessions []Session) []Session {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, s := range policy.Apply(sessions) {
			kept[s.ID] = true
		}
	}

	var result []Session
	for _, s := range sessions {
		if kept[s.ID] {
			result = append(result, s)
		}
	}
	return result
}

// Prune deletes every session the policy does not keep, with its events.
// The session being recorded is never deleted. Returns the deleted IDs.
func (s *SessionStore) Prune(ctx context.Context, policy RetentionPolicy) ([]string, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]bool)
	for _, sess := range policy.Apply(sessions) {
		kept[sess.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var deleted []string
	for _, sess := range sessions {
		if kept[sess.ID] || sess.ID == s.current {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sess.ID); err != nil {
			return nil, fmt.Errorf("failed to delete session %s: %w", sess.ID, err)
		}
		deleted = append(deleted, sess.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit prune: %w", err)
	}
	return deleted, nil
}
