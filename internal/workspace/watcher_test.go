package workspace

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/canakyuz-co/fridayx/internal/workspace/vfs"
)

func TestWatcherRepublishesFileList(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(vfs.NewOSFS())
	ws, err := reg.Add(root)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	changes := make(chan []string, 8)
	w, err := reg.Watch(ws.ID, 20*time.Millisecond, func(files []string) {
		changes <- files
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case files := <-changes:
			if len(files) == 2 && files[0] == "a.txt" && files[1] == "sub/b.txt" {
				return
			}
		case <-deadline:
			t.Fatal("file list was not republished")
		}
	}
}

func TestWatcherClose(t *testing.T) {
	reg := NewRegistry(vfs.NewOSFS())
	ws, err := reg.Add(t.TempDir())
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	w, err := reg.Watch(ws.ID, 0, nil)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := w.Close(); err != ErrWatcherClosed {
		t.Errorf("second Close = %v", err)
	}
}
