package edges

import (
	"strings"
	"time"

	"github.com/contextvault/memcore/internal/store"
)

// topicShiftGraceWindow is the wall-clock gap past which two adjacent
// chunks are assumed unrelated regardless of content.
const topicShiftGraceWindow = 30 * time.Minute

// Classification is the outcome of classifying why two adjacent chunks
// should be linked, or a report that they should not be.
type Classification struct {
	Linked     bool
	Reference  store.ReferenceType
	Confidence float64
}

// Gate reports whether a within-chain edge from prev to next should be
// suppressed by topic-shift gating: a known topic-shift marker appearing
// anywhere in next's content, or a time gap past the grace window.
func Gate(prev, next *store.Chunk) bool {
	if next.StartTime.Sub(prev.EndTime) > topicShiftGraceWindow {
		return true
	}
	lower := strings.ToLower(next.Content)
	for _, marker := range TopicShiftMarkersV1 {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Classify applies the step 2 priority chain. Gate must be
// checked by the caller first; Classify assumes the pair survived gating.
func Classify(prev, next *store.Chunk) Classification {
	if _, n := sharedFilePaths(prev.Content, next.Content); n > 0 {
		return Classification{Linked: true, Reference: store.RefFilePath, Confidence: confidenceFromOverlap(n)}
	}
	if _, n := sharedIdentifiers(prev.Content, next.Content); n > 0 {
		return Classification{Linked: true, Reference: store.RefCodeEntity, Confidence: confidenceFromOverlap(n)}
	}
	if hasPropagatedErrorFragment(prev.Content, next.Content) {
		return Classification{Linked: true, Reference: store.RefErrorFragment, Confidence: 0.7}
	}
	if hasExplicitBackref(next.Content) {
		return Classification{Linked: true, Reference: store.RefExplicitBackref, Confidence: 0.6}
	}
	if hasSharedToolOutputMarker(prev.Content, next.Content) {
		return Classification{Linked: true, Reference: store.RefToolOutput, Confidence: 0.5}
	}
	return Classification{Linked: true, Reference: store.RefAdjacent, Confidence: 0.3}
}

func confidenceFromOverlap(n int) float64 {
	confidence := 0.5 + 0.1*float64(n)
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

func sharedFilePaths(a, b string) ([]string, int) {
	setA := toSet(filePathPattern.FindAllString(a, -1))
	setB := toSet(filePathPattern.FindAllString(b, -1))
	return intersect(setA, setB)
}

func sharedIdentifiers(a, b string) ([]string, int) {
	setA := toSet(ExtractIdentifiers(a))
	setB := toSet(ExtractIdentifiers(b))
	return intersect(setA, setB)
}

func hasPropagatedErrorFragment(a, b string) bool {
	fragsA := errorFragmentPattern.FindAllString(a, -1)
	if len(fragsA) == 0 {
		return false
	}
	lowerB := strings.ToLower(b)
	for _, frag := range fragsA {
		key := strings.ToLower(strings.TrimSpace(frag))
		if len(key) >= 8 && strings.Contains(lowerB, key[:min(len(key), 40)]) {
			return true
		}
	}
	return errorFragmentPattern.MatchString(b)
}

func hasExplicitBackref(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range ExplicitBackrefPhrasesV1 {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func hasSharedToolOutputMarker(a, b string) bool {
	return toolOutputMarkerPattern.MatchString(a) && toolOutputMarkerPattern.MatchString(b)
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		out[item] = true
	}
	return out
}

func intersect(a, b map[string]bool) ([]string, int) {
	var shared []string
	for item := range a {
		if b[item] {
			shared = append(shared, item)
		}
	}
	return shared, len(shared)
}
