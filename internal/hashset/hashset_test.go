package hashset

import (
	"strings"
	"testing"
)

func TestLoadFromIgnoresCommentsAndBlanks(t *testing.T) {
	s := NewSet()
	data := strings.NewReader("# malicious hash feed\n\n" +
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85\n" +
		"   \n# another comment\n")
	if err := s.LoadFrom(data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 loaded hash, got %d", s.Len())
	}
	if !s.Contains("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b85") {
		t.Fatal("expected loaded hash to be present")
	}
}

func TestLoadFromOnlyCommentsYieldsEmptySet(t *testing.T) {
	s := NewSet()
	if err := s.LoadFrom(strings.NewReader("# nothing here\n\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty set, got %d entries", s.Len())
	}
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	s := NewSet()
	s.Add("ABCDEF")
	if !s.Contains("abcdef") {
		t.Fatal("expected case-insensitive match")
	}
}

func TestLoadFromReplacesPriorContents(t *testing.T) {
	s := NewSet()
	s.Add("stale")
	if err := s.LoadFrom(strings.NewReader("fresh\n")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Contains("stale") {
		t.Fatal("expected LoadFrom to replace, not merge, prior contents")
	}
	if !s.Contains("fresh") {
		t.Fatal("expected fresh hash to be present")
	}
}
