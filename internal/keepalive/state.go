package keepalive

import (
	"errors"
	"fmt"
	"os"
	"time"

	"tools.zach/dev/keepwarm/internal/atomicfile"
)

// ///////////////////////////////////////////////
// State
// ///////////////////////////////////////////////

// MaxHistory bounds the launch history.
const MaxHistory = 20

// stateFileMode keeps the state file private to the user.
const stateFileMode = 0o600

// State is the persisted keepalive state. Times are epoch milliseconds.
type State struct {
	LastLaunch int64   `json:"lastLaunch"`
	History    []int64 `json:"history"`
	// PauseUntil suspends launches until the given time.
	PauseUntil *int64 `json:"pauseUntil,omitempty"`
	// LastReauthOpen is when the companion app was last opened to renew an
	// expired token.
	LastReauthOpen *int64 `json:"lastReauthOpen,omitempty"`
}

// Paused reports whether launches are suspended at now.
func (s *State) Paused(now time.Time) bool {
	return s.PauseUntil != nil && *s.PauseUntil > now.UnixMilli()
}

// RecordLaunch sets LastLaunch and appends to History, dropping the oldest
// entries beyond [MaxHistory].
func (s *State) RecordLaunch(now time.Time) {
	ms := now.UnixMilli()
	s.LastLaunch = ms
	s.History = append(s.History, ms)
	if n := len(s.History); n > MaxHistory {
		s.History = append([]int64(nil), s.History[n-MaxHistory:]...)
	}
}

// LaunchesSince counts history entries at or after t.
func (s *State) LaunchesSince(t time.Time) int {
	ms := t.UnixMilli()
	n := 0
	for _, h := range s.History {
		if h >= ms {
			n++
		}
	}
	return n
}

// StateStore reads and writes the state file.
type StateStore struct {
	Path string
}

// Load reads the state. A missing file yields the zero state and no error;
// a malformed file yields the zero state and an error describing it.
func (s *StateStore) Load() (State, error) {
	var st State
	err := atomicfile.ReadJSON(s.Path, &st)
	if errors.Is(err, os.ErrNotExist) {
		return State{History: []int64{}}, nil
	}
	if err != nil {
		return State{History: []int64{}}, err
	}
	if st.History == nil {
		st.History = []int64{}
	}
	if len(st.History) > MaxHistory {
		st.History = st.History[len(st.History)-MaxHistory:]
	}
	return st, nil
}

// Save writes the state atomically with owner-only permissions.
func (s *StateStore) Save(st State) error {
	if st.History == nil {
		st.History = []int64{}
	}
	if err := atomicfile.WriteJSON(s.Path, st, stateFileMode); err != nil {
		return fmt.Errorf("save keepalive state: %w", err)
	}
	return nil
}
