package mediascan

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"usbguardian/internal/corelog"
	"usbguardian/internal/hashset"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("unexpected error writing fixture: %v", err)
	}
	return path
}

func digestOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func TestScanAlertsOnMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "payload.bin", "evil content")
	writeFile(t, dir, "innocent.txt", "hello world")

	hashes := hashset.NewSet()
	hashes.Add(digestOf("evil content"))

	bus := corelog.NewBus()
	s := &Scanner{Hashes: hashes, Bus: bus}

	scanned, matched := s.Scan(dir)
	if scanned != 2 {
		t.Errorf("expected 2 files scanned, got %d", scanned)
	}
	if matched != 1 {
		t.Errorf("expected 1 match, got %d", matched)
	}

	found := false
	for _, line := range bus.Drain() {
		if strings.Contains(line, "payload.bin") {
			found = true
		}
	}
	if !found {
		t.Error("expected an alert log line naming the matched file")
	}
}

func TestScanRecursesIntoSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	os.Mkdir(sub, 0o755)
	writeFile(t, sub, "deep.txt", "deep content")

	hashes := hashset.NewSet()
	hashes.Add(digestOf("deep content"))
	s := &Scanner{Hashes: hashes, Bus: corelog.NewBus()}

	_, matched := s.Scan(dir)
	if matched != 1 {
		t.Errorf("expected nested file to be hashed and matched, got %d matches", matched)
	}
}

func TestScanSkipsUnreadableEntryWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ok.txt", "fine")
	missing := filepath.Join(dir, "ghost")
	os.Symlink(filepath.Join(dir, "does-not-exist"), missing)

	hashes := hashset.NewSet()
	hashes.Add(digestOf("unrelated content"))
	s := &Scanner{Hashes: hashes, Bus: corelog.NewBus()}
	scanned, _ := s.Scan(dir)
	if scanned < 1 {
		t.Errorf("expected the broken symlink to be skipped, not to abort the walk")
	}
}

func TestScanWithEmptyHashSetSkipsWithWarning(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "whatever.txt", "content")

	bus := corelog.NewBus()
	s := &Scanner{Hashes: hashset.NewSet(), Bus: bus}
	scanned, matched := s.Scan(dir)
	if scanned != 0 || matched != 0 {
		t.Errorf("expected an empty hash set to skip scanning entirely, got scanned=%d matched=%d", scanned, matched)
	}

	lines := bus.Drain()
	if len(lines) != 1 || !strings.Contains(lines[0], "no hashes to compare") {
		t.Errorf("expected a single no-hashes warning, got %v", lines)
	}
}

func TestCandidateMountsExcludesWhitelist(t *testing.T) {
	root := t.TempDir()
	os.Mkdir(filepath.Join(root, "STICK"), 0o755)
	os.Mkdir(filepath.Join(root, "BACKUP"), 0o755)

	got, err := CandidateMounts(root, []string{filepath.Join(root, "BACKUP")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(root, "STICK") {
		t.Errorf("expected only STICK to be a candidate, got %v", got)
	}
}

func TestCandidateMountsMissingRootIsNotAnError(t *testing.T) {
	got, err := CandidateMounts(filepath.Join(t.TempDir(), "nonexistent"), nil)
	if err != nil {
		t.Fatalf("expected no error for an unmounted root, got %v", err)
	}
	if got != nil {
		t.Errorf("expected no candidates, got %v", got)
	}
}
