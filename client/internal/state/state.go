// Package state holds the observable client state shared between the protocol
// core and its consumers.
//
// Ownership of fields is split: connection fields are written only through a
// ConnectionWriter, and token/media/index fields only through a
// NotificationWriter. Everyone else reads snapshots or subscribes.
package state

import (
	"sync"

	"github.com/tapto/tapremote/pkg/protocol"
)

// Snapshot is an immutable copy of the client state.
type Snapshot struct {
	Connected       bool                 `json:"connected"`
	ConnectionError string               `json:"connection_error,omitempty"`
	LastToken       protocol.Token       `json:"last_token"`
	Playing         protocol.Playing     `json:"playing"`
	GamesIndex      protocol.IndexStatus `json:"games_index"`
}

// Listener is called synchronously after every state change. Listeners must
// not write to the store.
type Listener func(Snapshot)

// Reader is the read-only view handed to consumers.
type Reader interface {
	Snapshot() Snapshot
	Subscribe(Listener) (unsubscribe func())
}

// ConnectionWriter is owned by the transport side.
type ConnectionWriter interface {
	SetConnection(connected bool, connErr string)
}

// NotificationWriter is owned by the notification dispatcher.
type NotificationWriter interface {
	SetLastToken(protocol.Token)
	SetPlaying(protocol.Playing)
	SetGamesIndex(protocol.IndexStatus)
}

// Store is the single owner of the client state.
type Store struct {
	mu   sync.Mutex
	snap Snapshot

	// notifyMu serialises listener calls so subscribers observe changes in
	// the order they were applied.
	notifyMu  sync.Mutex
	listeners []*listenerEntry
}

type listenerEntry struct {
	fn Listener
}

// New returns a store initialised to empty defaults.
func New() *Store {
	return &Store{}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn and returns a function removing it. Unsubscribing
// twice is harmless.
func (s *Store) Subscribe(fn Listener) func() {
	entry := &listenerEntry{fn: fn}
	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, l := range s.listeners {
				if l == entry {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// Connection returns the writer owned by the transport.
func (s *Store) Connection() ConnectionWriter { return connectionWriter{s} }

// Notifications returns the writer owned by the notification dispatcher.
func (s *Store) Notifications() NotificationWriter { return notificationWriter{s} }

// update applies fn under the lock and notifies listeners when it reports a
// change.
func (s *Store) update(fn func(*Snapshot) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := fn(&s.snap)
	snap := s.snap
	listeners := make([]*listenerEntry, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if !changed {
		return
	}
	for _, l := range listeners {
		l.fn(snap)
	}
}

type connectionWriter struct{ s *Store }

func (w connectionWriter) SetConnection(connected bool, connErr string) {
	w.s.update(func(snap *Snapshot) bool {
		if snap.Connected == connected && snap.ConnectionError == connErr {
			return false
		}
		snap.Connected = connected
		snap.ConnectionError = connErr
		return true
	})
}

type notificationWriter struct{ s *Store }

func (w notificationWriter) SetLastToken(tok protocol.Token) {
	w.s.update(func(snap *Snapshot) bool {
		if snap.LastToken == tok {
			return false
		}
		snap.LastToken = tok
		return true
	})
}

func (w notificationWriter) SetPlaying(p protocol.Playing) {
	w.s.update(func(snap *Snapshot) bool {
		if snap.Playing == p {
			return false
		}
		snap.Playing = p
		return true
	})
}

func (w notificationWriter) SetGamesIndex(idx protocol.IndexStatus) {
	w.s.update(func(snap *Snapshot) bool {
		if snap.GamesIndex == idx {
			return false
		}
		snap.GamesIndex = idx
		return true
	})
}
