package library

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zephyrtronium/formulas"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls, last atomic.Int64
	for i := 1; i <= 5; i++ {
		i := i // per-iteration copy (go directive is below 1.22)
		d.Trigger(func() {
			calls.Add(1)
			last.Store(int64(i))
		})
	}
	time.Sleep(200 * time.Millisecond)
	if calls.Load() != 1 || last.Load() != 5 {
		t.Errorf("want one call of the last callback, got %d calls, last %d", calls.Load(), last.Load())
	}
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var calls atomic.Int64
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(100 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("stopped debouncer ran %d callbacks", calls.Load())
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defs.txt")
	if err := os.WriteFile(path, []byte("f(x) = x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	u := formulas.NewUserFuncs()
	if _, err := Apply(path, u); err != nil {
		t.Fatal(err)
	}
	w, err := NewWatcher(path, 20*time.Millisecond, quiet())
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	reloaded := make(chan struct{}, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- w.Watch(ctx, func() error {
			_, err := Apply(path, u)
			reloaded <- struct{}{}
			return err
		})
	}()

	// An unrelated file in the same directory is ignored, and the watch
	// might not be established yet, so keep writing until a reload lands.
	deadline := time.After(5 * time.Second)
	for {
		os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644)
		if err := os.WriteFile(path, []byte("f(x) = x\ng(x) = 2x\n"), 0644); err != nil {
			t.Fatal(err)
		}
		select {
		case <-reloaded:
		case <-time.After(100 * time.Millisecond):
			continue
		case <-deadline:
			t.Fatal("no reload")
		}
		break
	}
	if _, ok := u.Lookup("g"); !ok {
		t.Errorf("reload did not define g: %q", u.Names())
	}

	// A broken file is logged and leaves the registry alone.
	if err := os.WriteFile(path, []byte("broken\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after breaking the file")
	}
	if u.Len() != 2 {
		t.Errorf("broken file changed the registry: %q", u.Names())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch ended with %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatcherOnce(t *testing.T) {
	w, err := NewWatcher(filepath.Join(t.TempDir(), "defs.txt"), 0, quiet())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Watch(ctx, func() error { return nil }); err != nil {
		t.Errorf("canceled watch gave %v", err)
	}
	if err := w.Watch(ctx, func() error { return nil }); err == nil {
		t.Error("second watch succeeded")
	}
	if err := w.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
}
