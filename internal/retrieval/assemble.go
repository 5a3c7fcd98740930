package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/contextvault/memcore/internal/store"
)

const segmentJoiner = "\n\n---\n\n"
const truncationSuffix = "\n\n...[truncated]"

// minRemainingFractionForTruncation is the fraction of the remaining
// budget a truncated tail must retain to be worth emitting: cut at the
// nearest paragraph boundary >= 50% of remaining.
const minRemainingFractionForTruncation = 0.5

// minTokensToEmitTruncatedTail is the remaining-budget floor below which
// no truncated tail is emitted at all.
const minTokensToEmitTruncatedTail = 100

// assemble implements step 10: walk candidates in final order,
// formatting each as a segment until the budget is exhausted, truncating
// the last chunk that partially fits at a paragraph boundary.
func (p *Pipeline) assemble(ctx context.Context, cands []candidate, maxTokens int) (string, int, []IncludedChunk) {
	var segments []string
	var included []IncludedChunk
	tokensUsed := 0
	topWeight := 0.0
	if len(cands) > 0 {
		topWeight = cands[0].weight
	}

	for _, c := range cands {
		chunk, err := p.Chunks.GetChunk(ctx, c.chunkID)
		if err != nil || chunk == nil {
			continue
		}

		pct := 0
		if topWeight > 0 {
			pct = int(100 * c.weight / topWeight)
		}
		header := segmentHeader(chunk, pct)
		segment := header + chunk.Content
		// chunk.ApproxTokens was counted once at ingest time over the raw
		// content; reusing it here avoids re-tokenizing content that can run
		// to thousands of characters for every candidate walked. Only the
		// short header (session/date/relevance line) needs a fresh count.
		segTokens := chunk.ApproxTokens + p.Counter.Count(header)

		remaining := maxTokens - tokensUsed
		if segTokens <= remaining {
			segments = append(segments, segment)
			tokensUsed += segTokens
			included = append(included, IncludedChunk{
				ChunkID: c.chunkID, SessionSlug: chunk.SessionSlug,
				Weight: c.weight, Preview: preview(chunk.Content), Source: c.source,
			})
			continue
		}

		if remaining > minTokensToEmitTruncatedTail {
			truncated, ok := truncateToFit(chunk, pct, remaining, p.Counter)
			if ok {
				segments = append(segments, truncated)
				tokensUsed += p.Counter.Count(truncated)
				included = append(included, IncludedChunk{
					ChunkID: c.chunkID, SessionSlug: chunk.SessionSlug,
					Weight: c.weight, Preview: preview(chunk.Content), Source: c.source,
				})
			}
		}
		break
	}

	return strings.Join(segments, segmentJoiner), tokensUsed, included
}

// segmentHeader formats the "[Session: ... | Date: ... | Relevance: ...]"
// line prefixed to a chunk's content in the assembled context.
func segmentHeader(chunk *store.Chunk, relevancePct int) string {
	return fmt.Sprintf("[Session: %s | Date: %s | Relevance: %d%%]\n",
		chunk.SessionSlug, chunk.StartTime.Format("2006-01-02"), relevancePct)
}

// truncateToFit cuts chunk.Content at the nearest paragraph boundary that
// retains at least half of the remaining token budget, appending the
// truncation suffix. Returns ok=false if no such boundary exists.
func truncateToFit(chunk *store.Chunk, relevancePct int, remaining int, counter tokencountCounter) (string, bool) {
	header := segmentHeader(chunk, relevancePct)
	headerTokens := counter.Count(header)
	contentBudget := remaining - headerTokens - counter.Count(truncationSuffix)
	if contentBudget <= 0 {
		return "", false
	}

	paragraphs := strings.Split(chunk.Content, "\n\n")
	var kept strings.Builder
	minRetainTokens := int(float64(remaining) * minRemainingFractionForTruncation)

	for i, para := range paragraphs {
		candidate := kept.String()
		if candidate != "" {
			candidate += "\n\n"
		}
		candidate += para
		if counter.Count(candidate) > contentBudget {
			break
		}
		if i > 0 {
			kept.WriteString("\n\n")
		}
		kept.WriteString(para)
	}

	result := kept.String()
	if result == "" || counter.Count(result) < minRetainTokens {
		return "", false
	}
	return header + result + truncationSuffix, true
}

func preview(content string) string {
	if len(content) <= previewChars {
		return content
	}
	return content[:previewChars]
}

// tokencountCounter is the minimal interface truncateToFit needs, kept
// local to avoid importing the tokencount package name twice.
type tokencountCounter interface {
	Count(text string) int
}
