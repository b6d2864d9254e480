// Tests for the keepalive state file: launch history bounds, pause checks,
// and the store's load/save behaviour.
package keepalive

import (
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"testing"
	"time"
)

func ms(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

// ///////////////////////////////////////////////
// State Tests
// ///////////////////////////////////////////////

func TestRecordLaunchBoundsHistory(t *testing.T) {
	var st State
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := range 45 {
		st.RecordLaunch(base.Add(time.Duration(i) * time.Minute))
		if len(st.History) > MaxHistory {
			t.Fatalf("history length %d after %d launches", len(st.History), i+1)
		}
	}

	if len(st.History) != MaxHistory {
		t.Fatalf("len(History) = %d, want %d", len(st.History), MaxHistory)
	}
	want := make([]int64, 0, MaxHistory)
	for i := 45 - MaxHistory; i < 45; i++ {
		want = append(want, base.Add(time.Duration(i)*time.Minute).UnixMilli())
	}
	if !slices.Equal(st.History, want) {
		t.Errorf("History = %v, want oldest dropped in insertion order", st.History)
	}
	if st.LastLaunch != want[len(want)-1] {
		t.Errorf("LastLaunch = %d, want %d", st.LastLaunch, want[len(want)-1])
	}
}

func TestPaused(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		until *int64
		want  bool
	}{
		{"unset", nil, false},
		{"future", ms(now.Add(time.Minute)), true},
		{"past", ms(now.Add(-time.Minute)), false},
		{"exactly now", ms(now), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := State{PauseUntil: tt.until}
			if got := st.Paused(now); got != tt.want {
				t.Errorf("Paused() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLaunchesSince(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	st := State{History: []int64{
		day.Add(-time.Hour).UnixMilli(),
		day.UnixMilli(),
		day.Add(3 * time.Hour).UnixMilli(),
	}}
	if got := st.LaunchesSince(day); got != 2 {
		t.Errorf("LaunchesSince() = %d, want 2", got)
	}
}

// ///////////////////////////////////////////////
// StateStore Tests
// ///////////////////////////////////////////////

func TestStateStoreMissingFile(t *testing.T) {
	s := &StateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.LastLaunch != 0 || len(st.History) != 0 || st.PauseUntil != nil {
		t.Errorf("Load() = %+v, want zero state", st)
	}
	if _, err := os.Stat(s.Path); !os.IsNotExist(err) {
		t.Error("Load must not create the state file")
	}
}

func TestStateStoreRoundTrip(t *testing.T) {
	s := &StateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	now := time.Now()
	in := State{LastLaunch: 42, History: []int64{41, 42}, PauseUntil: ms(now), LastReauthOpen: ms(now.Add(-time.Hour))}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.LastLaunch != 42 || !slices.Equal(out.History, in.History) ||
		*out.PauseUntil != *in.PauseUntil || *out.LastReauthOpen != *in.LastReauthOpen {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(s.Path)
		if err != nil {
			t.Fatal(err)
		}
		if perm := info.Mode().Perm(); perm != 0o600 {
			t.Errorf("state file mode = %o, want 600", perm)
		}
	}
}

func TestStateStoreWritesEmptyHistoryArray(t *testing.T) {
	s := &StateStore{Path: filepath.Join(t.TempDir(), "state.json")}
	if err := s.Save(State{}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(s.Path)
	if want := `"history": []`; !strings.Contains(string(data), want) {
		t.Errorf("state file = %s, want %s", data, want)
	}
}

func TestStateStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	os.WriteFile(path, []byte("{not json"), 0o600)

	st, err := (&StateStore{Path: path}).Load()
	if err == nil {
		t.Fatal("Load() error = nil for malformed file")
	}
	if st.LastLaunch != 0 || st.History == nil {
		t.Errorf("Load() = %+v, want usable zero state", st)
	}
}

func TestStateStoreTrimsOversizedHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	os.WriteFile(path, []byte(`{"lastLaunch":25,"history":[1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19,20,21,22,23,24,25]}`), 0o600)

	st, err := (&StateStore{Path: path}).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(st.History) != MaxHistory || st.History[0] != 6 {
		t.Errorf("History = %v, want the newest %d entries", st.History, MaxHistory)
	}
}
