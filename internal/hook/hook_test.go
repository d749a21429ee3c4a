package hook

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/canakyuz-co/fridayx/internal/logging"
)

func TestRunSave(t *testing.T) {
	r := NewRunner()
	defer r.Close()

	err := r.LoadString("record", `
saved = {}
function on_save(path)
  table.insert(saved, path)
end
`)
	if err != nil {
		t.Fatalf("LoadString: %v", err)
	}

	ctx := context.Background()
	for _, p := range []string{"a.txt", "b/c.md"} {
		if err := r.RunSave(ctx, p); err != nil {
			t.Fatalf("RunSave(%q): %v", p, err)
		}
	}

	L := r.scripts[0].L
	if err := L.DoString(`result = table.concat(saved, ",")`); err != nil {
		t.Fatal(err)
	}
	if got := L.GetGlobal("result").String(); got != "a.txt,b/c.md" {
		t.Errorf("saved = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	r := NewRunner()
	defer r.Close()

	if err := r.LoadString("empty", `x = 1`); !errors.Is(err, ErrNoHook) {
		t.Errorf("missing on_save = %v", err)
	}
	if err := r.LoadString("broken", `function on_save(`); err == nil {
		t.Error("syntax error accepted")
	}
	if err := r.LoadFile(filepath.Join(t.TempDir(), "missing.lua")); err == nil {
		t.Error("missing file accepted")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d", r.Len())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notify.lua")
	src := `function on_save(path) fridayx.log("saved " .. path) end`
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	r := NewRunner(WithLogger(logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})))
	defer r.Close()

	if err := r.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := r.RunSave(context.Background(), "main.go"); err != nil {
		t.Fatalf("RunSave: %v", err)
	}
	if !strings.Contains(buf.String(), "saved main.go") || !strings.Contains(buf.String(), "script=notify.lua") {
		t.Errorf("log output = %q", buf.String())
	}
}

func TestFailingScriptDoesNotStopOthers(t *testing.T) {
	r := NewRunner()
	defer r.Close()

	_ = r.LoadString("bad", `function on_save(path) error("boom") end`)
	_ = r.LoadString("good", `count = 0; function on_save(path) count = count + 1 end`)

	err := r.RunSave(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("RunSave error = %v", err)
	}
	if got := r.scripts[1].L.GetGlobal("count").String(); got != "1" {
		t.Errorf("good script ran %s times", got)
	}
}

func TestSandbox(t *testing.T) {
	r := NewRunner()
	defer r.Close()

	_ = r.LoadString("escape", `function on_save(path) os.exit(1) end`)
	if err := r.RunSave(context.Background(), "x"); err == nil {
		t.Error("os library is reachable")
	}
	if err := r.LoadString("req", `require("io"); function on_save() end`); err == nil {
		t.Error("require is reachable")
	}
}

func TestTimeout(t *testing.T) {
	r := NewRunner(WithTimeout(50 * time.Millisecond))
	defer r.Close()

	_ = r.LoadString("spin", `function on_save(path) while true do end end`)

	done := make(chan error, 1)
	go func() { done <- r.RunSave(context.Background(), "x") }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("runaway script returned no error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout not enforced")
	}
}

func TestClosedRunner(t *testing.T) {
	r := NewRunner()
	_ = r.Close()
	if err := r.RunSave(context.Background(), "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("RunSave after Close = %v", err)
	}
	if err := r.LoadString("late", `function on_save() end`); !errors.Is(err, ErrClosed) {
		t.Errorf("LoadString after Close = %v", err)
	}
}
