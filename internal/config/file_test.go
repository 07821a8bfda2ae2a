package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "moviedeck.yaml")
	if err := os.WriteFile(path, []byte("tmdb:\n  api_key: old\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *FileConfig, 4)
	done := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		done <- Watch(ctx, path, logger, func(fc *FileConfig) { changes <- fc })
	}()

	// 監視開始を待ってから書き換える
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case fc := <-changes:
			if fc.TMDB.APIKey == "new" {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch returned error: %v", err)
				}
				return
			}
		case <-ticker.C:
			if err := os.WriteFile(path, []byte("tmdb:\n  api_key: new\n"), 0o600); err != nil {
				t.Fatalf("failed to rewrite config file: %v", err)
			}
		case <-deadline:
			t.Fatal("timed out waiting for config reload")
		}
	}
}

func TestWatch_StopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moviedeck.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, slog.New(slog.NewTextHandler(io.Discard, nil)), func(*FileConfig) {})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
