package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mitchellwinn/pioneer-online-sub002/internal/services/events"
	"github.com/mitchellwinn/pioneer-online-sub002/internal/storage"
	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

// branchDoc routes on a flag an inline event sets on an earlier line.
const branchDoc = `
<dialogue>
	<starter id="greet"/>
	<line id="greet" next="fork">Hello.` + "`set_flag|met|true`" + `</line>
	<line id="fork" next="cold">
		So.
		<conditional_next id="warm">
			<condition key="met" value="true"/>
		</conditional_next>
	</line>
	<line id="warm">Good to see you again.</line>
	<line id="cold">Who are you?</line>
</dialogue>`

const speakerDoc = `
<dialogue>
	<starter id="greet"/>
	<line id="greet">%Speaker|guard_captain%: Halt.</line>
</dialogue>`

func writeTestDoc(t *testing.T, root, name, content string) {
	t.Helper()
	dir := filepath.Join(root, "dialogue", "en")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create %s: %v", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+storage.DocExt), []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

func newTestManager(t *testing.T, docs map[string]string) (*Manager, *storage.MockStorage) {
	t.Helper()

	root := t.TempDir()
	for name, content := range docs {
		writeTestDoc(t, root, name, content)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	lib, err := storage.LoadLibrary(root, "en", logger)
	if err != nil {
		t.Fatalf("Failed to load library: %v", err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := storage.NewMockStorage()
	m := NewManager(Config{
		Library:      lib,
		Store:        store,
		Broadcaster:  events.NewBroadcaster(client, logger),
		Logger:       logger,
		TickInterval: time.Millisecond,
		Pacing:       conversation.Pacing{TextSpeed: 0.000001, SpeedMult: 1},
	})
	t.Cleanup(m.Close)
	return m, store
}

func waitFor(t *testing.T, m *Manager, id uuid.UUID, want conversation.State) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if view, ok := m.View(id); ok && view.State == want {
			return view
		}
		time.Sleep(time.Millisecond)
	}
	view, _ := m.View(id)
	t.Fatalf("Session never reached %s, last view: %+v", want, view)
	return View{}
}

func waitForEnd(t *testing.T, m *Manager, id uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := m.View(id); !ok {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Session %s never ended", id)
}

func TestManagerInlineEventSteersBranch(t *testing.T) {
	m, store := newTestManager(t, map[string]string{"branch": branchDoc})
	ctx := context.Background()

	view, err := m.Start(ctx, "p1", "branch", "")
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
	if err := m.Advance(view.ID); err != nil {
		t.Fatalf("Failed to advance: %v", err)
	}

	// "fork" suspends for its own confirm before its branches resolve.
	forked := waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
	if forked.LineID != "fork" {
		t.Fatalf("Expected to suspend on fork, got line %q", forked.LineID)
	}
	if err := m.Advance(view.ID); err != nil {
		t.Fatalf("Failed to advance past fork: %v", err)
	}

	// The set_flag event on "greet" must be visible when "fork" branches.
	got := waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
	if got.LineID != "warm" {
		t.Fatalf("Expected branch to warm, got line %q", got.LineID)
	}

	// And the flag reached durable storage for the next conversation.
	flags, err := store.GetFlags(ctx, "p1")
	if err != nil {
		t.Fatalf("Failed to read flags: %v", err)
	}
	if flags["met"] != "true" {
		t.Errorf("Expected met=true in storage, got %q", flags["met"])
	}
}

func TestManagerLastStartWins(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"branch": branchDoc, "speaker": speakerDoc})
	ctx := context.Background()

	first, err := m.Start(ctx, "p1", "branch", "")
	if err != nil {
		t.Fatalf("Failed to start first session: %v", err)
	}
	second, err := m.Start(ctx, "p1", "speaker", "")
	if err != nil {
		t.Fatalf("Failed to start second session: %v", err)
	}

	if _, ok := m.View(first.ID); ok {
		t.Error("First session should have been discarded")
	}
	if _, ok := m.View(second.ID); !ok {
		t.Error("Second session should be running")
	}
}

func TestManagerSpeakerSubstitution(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"speaker": speakerDoc})

	view, err := m.Start(context.Background(), "p1", "speaker", "")
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	got := waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
	if got.Nametag != "Guard Captain" {
		t.Errorf("Expected nametag %q, got %q", "Guard Captain", got.Nametag)
	}
	if got.Text != "Guard Captain: Halt." {
		t.Errorf("Unexpected prepared text: %q", got.Text)
	}
}

func TestManagerPersistsTerminalSnapshot(t *testing.T) {
	m, store := newTestManager(t, map[string]string{"speaker": speakerDoc})
	ctx := context.Background()

	view, err := m.Start(ctx, "p1", "speaker", "")
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}

	waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
	if err := m.Advance(view.ID); err != nil {
		t.Fatalf("Failed to advance: %v", err)
	}
	waitForEnd(t, m, view.ID)

	snap, err := store.LoadSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if snap == nil || snap.State != "ended" {
		t.Fatalf("Expected terminal snapshot, got %+v", snap)
	}
}

func TestManagerStopDeletesSnapshot(t *testing.T) {
	m, store := newTestManager(t, map[string]string{"speaker": speakerDoc})
	ctx := context.Background()

	view, err := m.Start(ctx, "p1", "speaker", "")
	if err != nil {
		t.Fatalf("Failed to start: %v", err)
	}
	if err := m.Stop(ctx, view.ID); err != nil {
		t.Fatalf("Failed to stop: %v", err)
	}

	if _, ok := m.View(view.ID); ok {
		t.Error("Session should be gone after Stop")
	}
	snap, err := store.LoadSession(ctx, view.ID)
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if snap != nil {
		t.Errorf("Snapshot should be deleted, got %+v", snap)
	}
}

func TestManagerCheckCommandRoutesOnRoll(t *testing.T) {
	const checkDoc = `
<dialogue>
	<starter id="attempt"/>
	<line id="attempt" next="fail">You try the lock.` + "`check|dexterity|15|picked`" + `
		<conditional_next id="success">
			<condition key="picked" value="true"/>
		</conditional_next>
	</line>
	<line id="success">It clicks open.</line>
	<line id="fail">It will not budge.</line>
</dialogue>`

	tests := []struct {
		name     string
		roll     int
		wantLine string
	}{
		{name: "high roll passes", roll: 20, wantLine: "success"},
		{name: "low roll fails", roll: 1, wantLine: "fail"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, store := newTestManager(t, map[string]string{"lock": checkDoc})
			m.roll = func() int { return tc.roll }
			ctx := context.Background()

			if err := store.SetFlag(ctx, "p1", "dexterity", "2"); err != nil {
				t.Fatalf("Failed to seed attribute: %v", err)
			}

			view, err := m.Start(ctx, "p1", "lock", "")
			if err != nil {
				t.Fatalf("Failed to start: %v", err)
			}

			waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
			if err := m.Advance(view.ID); err != nil {
				t.Fatalf("Failed to advance: %v", err)
			}

			got := waitFor(t, m, view.ID, conversation.StateAwaitingAdvance)
			if got.LineID != tc.wantLine {
				t.Errorf("Expected line %q, got %q", tc.wantLine, got.LineID)
			}
		})
	}
}
