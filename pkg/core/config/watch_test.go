package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/msto63/hive/pkg/core/logging"
	"go.uber.org/goleak"
)

func TestWatcher_Reload(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "hive.toml")
	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"info\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	w, err := NewWatcher(path, initial, logging.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)

	changed := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { changed <- cfg })

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[general]\nlog_level = \"debug\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changed:
		if cfg.General.LogLevel != "debug" {
			t.Errorf("LogLevel = %v, want debug", cfg.General.LogLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	if w.Current().General.LogLevel != "debug" {
		t.Errorf("Current().General.LogLevel = %v, want debug", w.Current().General.LogLevel)
	}
}

func TestWatcher_InvalidKeepsPrevious(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := filepath.Join(t.TempDir(), "hive.toml")
	if err := os.WriteFile(path, []byte("[thermal]\non_above = 50.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	w, err := NewWatcher(path, initial, logging.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)

	changed := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) { changed <- cfg })

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[thermal]\non_above = 10.0\noff_below = 20.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Fatal("callback fired for an invalid config")
	case <-time.After(300 * time.Millisecond):
	}

	if w.Current() != initial {
		t.Error("Current() changed after invalid reload")
	}
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	w, err := NewWatcher(filepath.Join(t.TempDir(), "hive.toml"), Default(), logging.NewNop())
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	w.Stop()
}
