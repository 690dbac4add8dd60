package sqliteutil

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func quiet(string, ...any) {}

func TestCheckHealthyDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("create table samples (resource text, ts integer, value real)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	rep, err := Check(context.Background(), path, Options{Role: "chart history", Logf: quiet})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !rep.Healthy || rep.MovedTo != "" || rep.Cause != nil {
		t.Fatalf("expected healthy report, got %+v", rep)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database should stay in place: %v", err)
	}
}

func TestCheckMissingFileIsHealthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	rep, err := Check(context.Background(), path, Options{Logf: quiet})
	if err != nil || !rep.Healthy {
		t.Fatalf("Check(missing) = %+v, %v", rep, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("check must not create the file, stat err = %v", err)
	}
}

func TestCheckQuarantinesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	if err := os.WriteFile(path, []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(path+"-journal", []byte("sidecar"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	var logged []string
	rep, err := Check(context.Background(), path, Options{
		Role: "chart history",
		Logf: func(format string, args ...any) { logged = append(logged, format) },
	})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if rep.Healthy || rep.Cause == nil || !strings.Contains(rep.MovedTo, ".bad-") {
		t.Fatalf("expected quarantine, got %+v", rep)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("original should be moved, stat err = %v", err)
	}
	if _, err := os.Stat(rep.MovedTo); err != nil {
		t.Fatalf("quarantined copy missing: %v", err)
	}
	for _, s := range sidecarPaths(path) {
		if _, err := os.Stat(s); err == nil {
			t.Fatalf("sidecar %s left at original path", s)
		}
	}
	if len(logged) == 0 {
		t.Fatalf("expected a log line for the quarantine")
	}
}

func TestPruneQuarantinedKeepsNewest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	var stamps []string
	for i := 0; i < 4; i++ {
		stamp := ".bad-" + base.Add(time.Duration(i)*time.Hour).Format(quarantineStamp)
		stamps = append(stamps, stamp)
		for _, p := range []string{path + stamp, path + "-wal" + stamp} {
			if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
				t.Fatalf("write %s: %v", p, err)
			}
		}
	}

	if n := pruneQuarantined(path, 2); n != 2 {
		t.Fatalf("pruneQuarantined removed %d, want 2", n)
	}
	for i, stamp := range stamps {
		_, err := os.Stat(path + stamp)
		_, walErr := os.Stat(path + "-wal" + stamp)
		kept := i >= 2
		if kept != (err == nil) || kept != (walErr == nil) {
			t.Fatalf("copy %d: kept=%v main err=%v wal err=%v", i, kept, err, walErr)
		}
	}
}
