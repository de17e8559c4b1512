package notifier

import (
	"context"
	"fmt"
	"testing"

	"github.com/embywatch/embywatch/internal/emby"
)

// fakeSessionSource returns a scripted sequence of snapshots.
type fakeSessionSource struct {
	snapshots [][]emby.Session
	errs      []error
	calls     int
}

func (f *fakeSessionSource) Sessions(ctx context.Context) ([]emby.Session, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.snapshots) {
		i = len(f.snapshots) - 1
	}
	return f.snapshots[i], nil
}

func playing(id, user, item string) emby.Session {
	return emby.Session{ID: id, UserName: user, NowPlayingItem: &emby.Item{Name: item, Type: "Movie"}}
}

func idle(id string) emby.Session {
	return emby.Session{ID: id}
}

func newTestMonitor(t *testing.T, src SessionSource) *Monitor {
	t.Helper()
	m, err := NewMonitor(MonitorOpts{Source: src})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func TestMonitor_FirstSnapshotSeedsWithoutNotifying(t *testing.T) {
	src := &fakeSessionSource{snapshots: [][]emby.Session{
		{playing("s1", "alice", "Heat")},
	}}
	m := newTestMonitor(t, src)

	started, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(started) != 0 {
		t.Errorf("started = %d, want 0 (baseline must not notify)", len(started))
	}
	if m.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1", m.ActiveCount())
	}
}

func TestMonitor_StartFiresExactlyOncePerSession(t *testing.T) {
	src := &fakeSessionSource{snapshots: [][]emby.Session{
		{},
		{playing("s1", "alice", "Heat")},
		{playing("s1", "alice", "Heat")}, // identical snapshot repeated
		{playing("s1", "alice", "Heat")},
	}}
	m := newTestMonitor(t, src)

	total := 0
	for i := 0; i < 4; i++ {
		started, err := m.Poll(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		total += len(started)
	}
	if total != 1 {
		t.Errorf("start notifications = %d, want exactly 1", total)
	}
}

func TestMonitor_ReappearanceAfterDisappearanceNotifiesAgain(t *testing.T) {
	src := &fakeSessionSource{snapshots: [][]emby.Session{
		{},
		{playing("s1", "alice", "Heat")},
		{}, // session gone
		{playing("s1", "alice", "Heat")}, // back again
	}}
	m := newTestMonitor(t, src)

	counts := make([]int, 4)
	for i := 0; i < 4; i++ {
		started, err := m.Poll(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[i] = len(started)
	}
	if counts[1] != 1 || counts[3] != 1 {
		t.Errorf("counts = %v, want start fired on polls 1 and 3", counts)
	}
	if counts[2] != 0 {
		t.Errorf("disappearance produced a notification (stop side is intentionally absent)")
	}
}

func TestMonitor_IdleSessionNeverNotifies(t *testing.T) {
	src := &fakeSessionSource{snapshots: [][]emby.Session{
		{},
		{idle("s1"), playing("s2", "bob", "Alien")},
	}}
	m := newTestMonitor(t, src)

	m.Poll(context.Background())
	started, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(started) != 1 || started[0].ID != "s2" {
		t.Errorf("started = %+v, want only s2", started)
	}
}

func TestMonitor_FetchFailureLeavesSetUntouched(t *testing.T) {
	src := &fakeSessionSource{
		snapshots: [][]emby.Session{
			{},
			{playing("s1", "alice", "Heat")},
			nil, // error slot
			{playing("s1", "alice", "Heat")},
		},
		errs: []error{nil, nil, fmt.Errorf("connection refused"), nil},
	}
	m := newTestMonitor(t, src)

	m.Poll(context.Background())
	m.Poll(context.Background())

	if _, err := m.Poll(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if m.ActiveCount() != 1 {
		t.Errorf("active = %d after failure, want 1 (set must be untouched)", m.ActiveCount())
	}

	started, err := m.Poll(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(started) != 0 {
		t.Errorf("started = %d after recovery, want 0 (no duplicate notification)", len(started))
	}
}
