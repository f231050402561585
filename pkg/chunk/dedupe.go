package chunk

import (
	"strconv"
	"strings"

	"github.com/foliumapp/ragcore/pkg/text"
)

// fingerprint returns the cheap exact-dedup key: first 50 chars, the
// normalized length, and the last 50 chars of the lowercased,
// whitespace-collapsed content.
func fingerprint(content string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(content)), " ")
	first := text.SafeUTF8Truncate(normalized, 50)
	last := normalized
	if len(normalized) > 50 {
		last = text.SafeUTF8Truncate(normalized[len(normalized)-50:], 50)
	}
	return first + "|" + strconv.Itoa(len(normalized)) + "|" + last
}

// wordSet returns the distinct lowercase words of s, for Jaccard similarity.
func wordSet(s string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// jaccard computes the Jaccard similarity of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// dedupe drops exact fingerprint duplicates, then collapses consecutive
// chunks whose Jaccard similarity exceeds 0.85 (keeping the longer of the
// pair), and finally re-assigns chunkIndex to stay dense from 0.
func dedupe(chunks []Chunk) []Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	seen := make(map[string]struct{}, len(chunks))
	deduped := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		fp := fingerprint(c.Content)
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		deduped = append(deduped, c)
	}

	out := make([]Chunk, 0, len(deduped))
	for _, c := range deduped {
		if len(out) == 0 {
			out = append(out, c)
			continue
		}
		prev := &out[len(out)-1]
		sim := jaccard(wordSet(prev.Content), wordSet(c.Content))
		if sim > 0.85 {
			if len(c.Content) > len(prev.Content) {
				*prev = c
			}
			continue
		}
		out = append(out, c)
	}

	for i := range out {
		out[i].ChunkIndex = i
	}
	return out
}
