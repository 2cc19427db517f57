// ABOUTME: Identity Provider collaborator supplying user profiles to the engine
// ABOUTME: The engine never authenticates; it trusts the identities it is given

package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/lessonloop/messaging/internal/store"
)

// ErrUnknownUser is returned when no profile exists for a user id.
var ErrUnknownUser = errors.New("unknown user")

// Provider resolves user ids to current profile snapshots. Conversation
// records embed copies of these snapshots; retrieval paths refresh them
// through a Provider so display names and online state stay current.
type Provider interface {
	Lookup(userID string) (store.Participant, error)
}

// Roster is an in-memory Provider backed by a fixed user set, loadable
// from a TOML file.
type Roster struct {
	mu    sync.RWMutex
	users map[string]store.Participant
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{users: make(map[string]store.Participant)}
}

// rosterFile is the on-disk TOML shape.
type rosterFile struct {
	Users []rosterUser `toml:"users"`
}

type rosterUser struct {
	ID          string `toml:"id"`
	DisplayName string `toml:"display_name"`
	AvatarRef   string `toml:"avatar_ref"`
	Role        string `toml:"role"`
}

// LoadRoster reads a TOML roster file:
//
//	[[users]]
//	id = "u1"
//	display_name = "Alice"
//	role = "student"
func LoadRoster(path string) (*Roster, error) {
	var file rosterFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	r := NewRoster()
	for _, u := range file.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("roster entry missing id")
		}
		role := store.Role(u.Role)
		switch role {
		case store.RoleStudent, store.RoleTeacher, store.RoleSupport:
		default:
			return nil, fmt.Errorf("roster entry %s: unknown role %q", u.ID, u.Role)
		}
		r.Put(store.Participant{
			UserID:      u.ID,
			DisplayName: u.DisplayName,
			AvatarRef:   u.AvatarRef,
			Role:        role,
		})
	}
	return r, nil
}

// Put adds or replaces a profile.
func (r *Roster) Put(p store.Participant) {
	r.mu.Lock()
	r.users[p.UserID] = p
	r.mu.Unlock()
}

// Lookup implements Provider.
func (r *Roster) Lookup(userID string) (store.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.users[userID]
	if !ok {
		return store.Participant{}, ErrUnknownUser
	}
	return p, nil
}

// SetOnline flips a user's presence; going offline stamps LastSeenAt.
func (r *Roster) SetOnline(userID string, online bool, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[userID]
	if !ok {
		return
	}
	p.IsOnline = online
	if !online {
		seen := at
		p.LastSeenAt = &seen
	}
	r.users[userID] = p
}
