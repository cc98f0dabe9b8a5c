package gateway

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/bonfirelabs/bonfire/internal/chat"
	"github.com/bonfirelabs/bonfire/internal/config"
	"github.com/bonfirelabs/bonfire/internal/pipeline"
)

func testGatewayConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "bonfire.db")
	cfg.Memory.Enabled = false
	cfg.Gateway.Host = "127.0.0.1"
	cfg.Gateway.Port = 0 // let the OS pick
	return cfg
}

func TestNewWithOptionsSeedsAgentProfile(t *testing.T) {
	cfg := testGatewayConfig(t)

	g, err := NewWithOptions(cfg, Options{Handler: &fakeHandler{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	defer g.Close()

	profile, err := g.store.Profile("00000000-0000-0000-0000-000000000001")
	if err != nil {
		t.Fatalf("load agent profile: %v", err)
	}
	if profile == nil || profile.Name != cfg.Agent.Name {
		t.Errorf("agent profile = %+v", profile)
	}
}

func TestJobsRegisteredOnlyWhenEnabled(t *testing.T) {
	cfg := testGatewayConfig(t)

	g, err := NewWithOptions(cfg, Options{Handler: &fakeHandler{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	if n := g.cron.JobCount(); n != 0 {
		t.Errorf("jobs registered with everything disabled: %d", n)
	}
	g.Close()

	cfg2 := testGatewayConfig(t)
	cfg2.Jobs.ReviveSweep.Enabled = true
	g2, err := NewWithOptions(cfg2, Options{Handler: &fakeHandler{}})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	defer g2.Close()
	if n := g2.cron.JobCount(); n != 1 {
		t.Errorf("job count = %d, want 1", n)
	}
}

func TestRunShutsDownOnSignal(t *testing.T) {
	cfg := testGatewayConfig(t)
	sigCh := make(chan os.Signal, 1)

	g, err := NewWithOptions(cfg, Options{Handler: &fakeHandler{}, SignalChan: sigCh})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Run(context.Background())
	}()

	// Give the HTTP listener a moment to come up, then signal.
	time.Sleep(100 * time.Millisecond)
	sigCh <- syscall.SIGTERM

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not shut down after signal")
	}
}

func TestReviveSweepSkipsAgentLastWord(t *testing.T) {
	cfg := testGatewayConfig(t)
	handler := &fakeHandler{outcome: &pipeline.Outcome{Silent: true, Reason: "no_trigger"}}

	g, err := NewWithOptions(cfg, Options{Handler: handler})
	if err != nil {
		t.Fatalf("NewWithOptions error: %v", err)
	}
	defer g.Close()

	room, err := g.store.CreateRoom("dead room")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	insertGatewayMessage(t, g, room.ID, "user-1", "anyone here?", old, false)

	g.reviveSweep(context.Background())
	if handler.calls != 1 {
		t.Errorf("sweep ran pipeline %d times, want 1", handler.calls)
	}
	if handler.last.RoomID != room.ID {
		t.Errorf("sweep targeted room %s", handler.last.RoomID)
	}

	// Agent already had the last word: sweeping again must not re-nudge.
	insertGatewayMessage(t, g, room.ID, "00000000-0000-0000-0000-000000000001", "hello?", old.Add(time.Minute), true)
	handler.calls = 0
	g.reviveSweep(context.Background())
	if handler.calls != 0 {
		t.Errorf("sweep re-ran pipeline %d times for agent-last room", handler.calls)
	}
}

func insertGatewayMessage(t *testing.T, g *Gateway, roomID, authorID, content string, at time.Time, isAgent bool) {
	t.Helper()
	m := &chat.Message{
		RoomID:    roomID,
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at,
		IsAgent:   isAgent,
	}
	if err := g.store.InsertMessage(m); err != nil {
		t.Fatalf("insert message: %v", err)
	}
}
