package tui_test

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/exp/teatest"

	"vibetodo/backend/sqlite"
	"vibetodo/internal/service"
	"vibetodo/internal/tui"
)

// sendKeyAndWait sends a key message and waits briefly for processing.
func sendKeyAndWait(tm *teatest.TestModel, key tea.KeyMsg) {
	tm.Send(key)
	time.Sleep(20 * time.Millisecond)
}

// sendRunesAndWait sends a rune key message and waits briefly for processing.
func sendRunesAndWait(tm *teatest.TestModel, runes []rune) {
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyRunes, Runes: runes})
}

func readAll(t *testing.T, r io.Reader) []byte {
	t.Helper()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	return out
}

func newSeededService(t *testing.T) *service.Service {
	t.Helper()
	b, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New error: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	svc := service.New(b)
	ctx := context.Background()
	for _, seed := range []struct{ title, project string }{
		{"Review PR", "Work"},
		{"Write tests", "Work"},
		{"Buy groceries", "Home"},
	} {
		if _, err := svc.CreateTask(ctx, seed.title, service.CreateOptions{Project: seed.project}); err != nil {
			t.Fatal(err)
		}
	}
	return svc
}

func TestTUILaunch(t *testing.T) {
	tm := teatest.NewTestModel(t, tui.New(newSeededService(t)), teatest.WithInitialTermSize(100, 24))
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	for _, want := range []string{"Projects", "All", "Work", "Home", "Review PR", "Buy groceries"} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestTUIAddTask(t *testing.T) {
	svc := newSeededService(t)
	tm := teatest.NewTestModel(t, tui.New(svc), teatest.WithInitialTermSize(100, 24))
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'a'})
	for _, r := range "New test task" {
		tm.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEnter})
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("New test task")) {
		t.Error("expected new task to appear in list")
	}

	tasks, err := svc.ListTasks(context.Background(), "")
	if err != nil || len(tasks) != 4 {
		t.Errorf("ListTasks = %d tasks, %v; want 4", len(tasks), err)
	}
}

func TestTUIKeyBindings(t *testing.T) {
	tm := teatest.NewTestModel(t, tui.New(newSeededService(t)), teatest.WithInitialTermSize(100, 30))
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'?'})
	sendKeyAndWait(tm, tea.KeyMsg{Type: tea.KeyEsc})
	sendRunesAndWait(tm, []rune{'q'})

	out := readAll(t, tm.FinalOutput(t, teatest.WithFinalTimeout(time.Second)))
	if !bytes.Contains(out, []byte("Key Bindings")) {
		t.Error("expected help panel to show key bindings")
	}
}

func TestTUIQuit(t *testing.T) {
	tm := teatest.NewTestModel(t, tui.New(newSeededService(t)), teatest.WithInitialTermSize(80, 24))
	time.Sleep(100 * time.Millisecond)

	sendRunesAndWait(tm, []rune{'q'})

	tm.WaitFinished(t, teatest.WithFinalTimeout(time.Second))
}
