package whitelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeRankedCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ranked.csv")
	if err := os.WriteFile(path, []byte(rows), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckManualDomains(t *testing.T) {
	idx := NewIndex([]string{"wikipedia.org", " GitHub.com "}, 1000, zap.NewNop())

	match := idx.Check("https://wikipedia.org/wiki/Cats")
	if !match.Whitelisted || match.Source != SourceManual {
		t.Errorf("expected manual match, got %+v", match)
	}

	// Manual entries are normalized on construction.
	match = idx.Check("https://github.com/some/repo")
	if !match.Whitelisted || match.Source != SourceManual {
		t.Errorf("expected manual match for normalized entry, got %+v", match)
	}

	match = idx.Check("https://unknown-site.example")
	if match.Whitelisted || match.Source != SourceNone {
		t.Errorf("expected no match, got %+v", match)
	}
}

func TestCheckBeforeRankedLoad(t *testing.T) {
	idx := NewIndex(nil, 1000, zap.NewNop())
	if match := idx.Check("https://google.com"); match.Whitelisted {
		t.Errorf("ranked set should be empty before load, got %+v", match)
	}
}

func TestLoadRanked(t *testing.T) {
	path := writeRankedCSV(t, "1,google.com\n2,youtube.com\n3,facebook.com\n1500,overcutoff.example\n")
	idx := NewIndex(nil, 1000, zap.NewNop())
	if err := idx.LoadRanked(context.Background(), path); err != nil {
		t.Fatalf("LoadRanked: %v", err)
	}

	match := idx.Check("https://google.com/search?q=cats")
	if !match.Whitelisted || match.Source != SourceRanked {
		t.Errorf("expected ranked match, got %+v", match)
	}
	if match.Rank != "1-1000" {
		t.Errorf("expected rank band 1-1000, got %q", match.Rank)
	}

	if match := idx.Check("https://overcutoff.example"); match.Whitelisted {
		t.Errorf("domain beyond cutoff should not match, got %+v", match)
	}
}

func TestLoadRankedSkipsMalformedRows(t *testing.T) {
	path := writeRankedCSV(t, "1,google.com\nnot-a-rank,bad.example\n2\n3,youtube.com\n")
	idx := NewIndex(nil, 1000, zap.NewNop())
	if err := idx.LoadRanked(context.Background(), path); err != nil {
		t.Fatalf("LoadRanked: %v", err)
	}

	if !idx.Check("https://youtube.com").Whitelisted {
		t.Error("valid row after malformed rows should still load")
	}
	if idx.Check("https://bad.example").Whitelisted {
		t.Error("row with unparsable rank should be skipped")
	}
}

func TestLoadRankedMissingFile(t *testing.T) {
	idx := NewIndex([]string{"wikipedia.org"}, 1000, zap.NewNop())
	if err := idx.LoadRanked(context.Background(), "/nonexistent/ranked.csv"); err == nil {
		t.Fatal("expected error for missing dataset")
	}

	// Manual entries keep working after a failed load.
	if !idx.Check("https://wikipedia.org").Whitelisted {
		t.Error("manual whitelist should survive a failed ranked load")
	}
	if idx.Check("https://google.com").Whitelisted {
		t.Error("ranked set should stay empty after a failed load")
	}
}

func TestCheckSubdomains(t *testing.T) {
	path := writeRankedCSV(t, "1,google.com\n")
	idx := NewIndex([]string{"wikipedia.org"}, 1000, zap.NewNop())
	if err := idx.LoadRanked(context.Background(), path); err != nil {
		t.Fatalf("LoadRanked: %v", err)
	}

	match := idx.Check("https://docs.google.com/document/d/abc")
	if !match.Whitelisted || match.Source != SourceRanked {
		t.Errorf("subdomain of ranked domain should match, got %+v", match)
	}
	if match.Domain != "google.com" {
		t.Errorf("match should report the registrable domain, got %q", match.Domain)
	}

	match = idx.Check("https://en.wikipedia.org/wiki/Go")
	if !match.Whitelisted || match.Source != SourceManual {
		t.Errorf("subdomain of manual domain should match, got %+v", match)
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/a", "example.com"},
		{"example.com/a", "example.com"},
		{"http://sub.example.co.uk", "sub.example.co.uk"},
		{"http://[::1", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractDomain(tt.in); got != tt.want {
			t.Errorf("extractDomain(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
