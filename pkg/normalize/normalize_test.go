package normalize_test

import (
	"strings"
	"testing"

	"github.com/foliumapp/ragcore/pkg/normalize"
)

func TestNormalize_Ligatures(t *testing.T) {
	got := normalize.Normalize("oﬃce ﬁle ﬂow", 0, 0, normalize.Opts{})
	want := "office file flow"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestNormalize_Hyphenation(t *testing.T) {
	got := normalize.Normalize("resusci-\ntation guidelines", 0, 0, normalize.Opts{RemoveHyphenation: true})
	if strings.Contains(got, "-\n") {
		t.Errorf("hyphenation not stitched: %q", got)
	}
	if !strings.Contains(got, "resuscitation") {
		t.Errorf("expected stitched word, got %q", got)
	}
}

func TestNormalize_Whitespace(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapse inner spaces", "a   b", "a b"},
		{"collapse triple newlines", "a\n\n\n\nb", "a\n\nb"},
		{"trim lines", "  a  \n  b  ", "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalize.Normalize(tt.in, 0, 0, normalize.Opts{NormalizeWhitespace: true})
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalize_TableMarking(t *testing.T) {
	in := "intro\na | b | c\nd | e | f\noutro"
	got := normalize.Normalize(in, 0, 0, normalize.Opts{PreserveTables: true})
	if !strings.Contains(got, "[TABLE_BEGIN]") || !strings.Contains(got, "[TABLE_END]") {
		t.Errorf("expected table markers, got %q", got)
	}
}

func TestNormalize_PageMarkers(t *testing.T) {
	got := normalize.Normalize("hello", 2, 5, normalize.Opts{IncludePageMarkers: true})
	if !strings.Contains(got, "--- Sayfa 2/5 ---") {
		t.Errorf("expected page marker, got %q", got)
	}
}

func TestNormalize_NoOptsIsIdentity(t *testing.T) {
	in := "  keep   as-is  "
	got := normalize.Normalize(in, 0, 0, normalize.Opts{})
	if got != in {
		t.Errorf("expected identity without whitespace option, got %q", got)
	}
}
