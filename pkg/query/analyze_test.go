package query_test

import (
	"testing"

	"github.com/foliumapp/ragcore/pkg/query"
)

func TestAnalyze_PageNumbers(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"page word", "page 45", 45},
		{"capitalized page word", "Page 45", 45},
		{"s. abbreviation", "s.45", 45},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := query.Analyze(tt.in)
			if len(a.PageNumbers) != 1 || a.PageNumbers[0] != tt.want {
				t.Fatalf("got %v, want [%d]", a.PageNumbers, tt.want)
			}
		})
	}
}

func TestAnalyze_FigureAndTableRefs(t *testing.T) {
	a := query.Analyze("see Figure 2-1 and Table 3 for details")
	if len(a.FigureRefs) != 1 || a.FigureRefs[0] != "2-1" {
		t.Fatalf("figureRefs = %v", a.FigureRefs)
	}
	if len(a.TableRefs) != 1 || a.TableRefs[0] != "3" {
		t.Fatalf("tableRefs = %v", a.TableRefs)
	}
	if !a.HasSpecificReference() {
		t.Fatalf("expected HasSpecificReference to be true")
	}
}

func TestAnalyze_NoReference(t *testing.T) {
	a := query.Analyze("troponin related recommendations")
	if a.HasSpecificReference() {
		t.Fatalf("expected no specific reference")
	}
}

func TestAnalyze_SimplifiedQuery(t *testing.T) {
	a := query.Analyze("What is the recommended CPR technique for cardiac arrest?")
	if a.SimplifiedQuery == "" {
		t.Fatalf("expected non-empty simplified query")
	}
	for _, w := range []string{"what", "the", "is"} {
		if contains(a.SimplifiedQuery, w) {
			t.Errorf("simplified query %q should not contain stop word %q", a.SimplifiedQuery, w)
		}
	}
}

func TestAnalyze_Language(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want query.Language
	}{
		{"turkish diacritic", "kardiyak arrest için öneriler", query.Turkish},
		{"english stop words", "what is the recommended treatment", query.English},
		{"neither", "12345 67890", query.Simple},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := query.Analyze(tt.in)
			if a.Language != tt.want {
				t.Errorf("language = %v, want %v", a.Language, tt.want)
			}
		})
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
