package hashfeed

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"usbguardian/internal/corelog"
	"usbguardian/internal/hashset"
)

type stubFetcher struct {
	payload []byte
	err     error
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.payload, nil
}

func zipOf(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip writer: %v", err)
	}
	return buf.Bytes()
}

func TestEnsureFreshFetchesWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.txt")
	archive := zipOf(t, "hashes.txt", "# comment\nDEADBEEF\n\nCAFEBABE\n")

	l := NewLoader(path, "https://example.invalid/hashes.zip", 48*time.Hour, &stubFetcher{payload: archive}, corelog.NewBus())
	l.EnsureFresh(context.Background())

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected canonical file to be written: %v", err)
	}
	if string(data) != "deadbeef\ncafebabe\n" {
		t.Fatalf("unexpected canonical contents: %q", data)
	}
	if l.Degraded {
		t.Fatal("expected loader not to be degraded after a successful fetch")
	}
}

func TestEnsureFreshSkipsWhenFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.txt")
	if err := os.WriteFile(path, []byte("abc\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	l := NewLoader(path, "https://example.invalid/hashes.zip", 48*time.Hour, &stubFetcher{err: errors.New("should not be called")}, corelog.NewBus())
	l.EnsureFresh(context.Background())

	data, _ := os.ReadFile(path)
	if string(data) != "abc\n" {
		t.Fatalf("expected file untouched, got %q", data)
	}
}

func TestEnsureFreshDegradesOnFailureWithNoExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.txt")

	l := NewLoader(path, "https://example.invalid/hashes.zip", 48*time.Hour, &stubFetcher{err: errors.New("network disabled")}, corelog.NewBus())
	l.EnsureFresh(context.Background())

	if !l.Degraded {
		t.Fatal("expected loader to be degraded when fetch fails and no file exists")
	}
	if _, err := os.Stat(path); err == nil {
		t.Fatal("expected no canonical file to have been created")
	}
}

func TestEnsureFreshRetainsExistingFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.txt")
	if err := os.WriteFile(path, []byte("stale\n"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	// Make it look stale so EnsureFresh attempts a refetch.
	old := time.Now().Add(-72 * time.Hour)
	os.Chtimes(path, old, old)

	l := NewLoader(path, "https://example.invalid/hashes.zip", 48*time.Hour, &stubFetcher{err: errors.New("offline")}, corelog.NewBus())
	l.EnsureFresh(context.Background())

	data, _ := os.ReadFile(path)
	if string(data) != "stale\n" {
		t.Fatalf("expected stale file retained, got %q", data)
	}
}

func TestLoadOnceOnlyLoadsFirstCall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hashes.txt")
	os.WriteFile(path, []byte("abc123\n"), 0o644)

	l := NewLoader(path, "", 48*time.Hour, NewHTTPFetcher(), corelog.NewBus())
	set := hashset.NewSet()

	if err := l.LoadOnce(set); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 hash loaded, got %d", set.Len())
	}

	// Mutate the file and load again: must be a no-op.
	os.WriteFile(path, []byte("abc123\ndef456\n"), 0o644)
	if err := l.LoadOnce(set); err != nil {
		t.Fatalf("unexpected error on second LoadOnce: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected LoadOnce to be a no-op on second call, got %d entries", set.Len())
	}
}

func TestLoadOnceMissingFileDegradesButDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.txt")

	l := NewLoader(path, "", 48*time.Hour, NewHTTPFetcher(), corelog.NewBus())
	set := hashset.NewSet()

	if err := l.LoadOnce(set); err == nil {
		t.Fatal("expected an error when canonical file is missing")
	}
	if !l.Degraded {
		t.Fatal("expected loader to be marked degraded")
	}
	if set.Len() != 0 {
		t.Fatalf("expected empty set, got %d", set.Len())
	}
}
