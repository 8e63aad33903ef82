package dialog

import (
	"reflect"
	"testing"
)

func TestExtractKeywordsStripsPunctuationAndStopwords(t *testing.T) {
	got := ExtractKeywords("Python, Django ve REST için deneyimim var.")
	want := []string{"python", "django", "rest", "deneyimim", "var"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractKeywords() = %v, want %v", got, want)
	}
}

func TestExtractKeywordsPreservesInsertionOrderAndDedups(t *testing.T) {
	got := ExtractKeywords("kafka kafka redis kafka postgres redis")
	want := []string{"kafka", "redis", "postgres"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExtractKeywords() = %v, want %v", got, want)
	}
}

func TestExtractKeywordsCapsAtTen(t *testing.T) {
	got := ExtractKeywords("aa bb cc dd ee ff gg hh ii jj kk ll")
	if len(got) != 10 {
		t.Fatalf("len(ExtractKeywords()) = %d, want 10", len(got))
	}
	if got[0] != "aa" || got[9] != "jj" {
		t.Fatalf("ExtractKeywords() boundary tokens = %q, %q", got[0], got[9])
	}
}

func TestExtractKeywordsEmptyInput(t *testing.T) {
	if got := ExtractKeywords("   "); got != nil {
		t.Fatalf("ExtractKeywords(blank) = %v, want nil", got)
	}
}

func TestKeywordHitsCaseInsensitive(t *testing.T) {
	hits := KeywordHits([]string{"Python", "django", "golang"}, "We use PYTHON and Django daily")
	if hits != 2 {
		t.Fatalf("KeywordHits() = %d, want 2", hits)
	}
}

func TestKeywordOverlap(t *testing.T) {
	a := []string{"python", "django", "rest"}
	b := []string{"django", "rest", "api"}
	if got := KeywordOverlap(a, b); got != 2 {
		t.Fatalf("KeywordOverlap() = %d, want 2", got)
	}
	if got := KeywordOverlap(nil, b); got != 0 {
		t.Fatalf("KeywordOverlap(nil, b) = %d, want 0", got)
	}
}
