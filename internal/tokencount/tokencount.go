// Package tokencount estimates token counts for budgeted context assembly
// It wraps a BPE tokenizer where available and
// falls back to a fixed chars-per-token approximation when the tokenizer
// can't be loaded (e.g. no network on first use), consistent with the
// DependencyUnavailable degrade policy: estimation never fails a retrieval.
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerTokenFallback approximates English/code text at ~4 characters
// per token when the real tokenizer is unavailable.
const charsPerTokenFallback = 4

// Counter estimates the token count of a string.
type Counter interface {
	Count(text string) int
}

// bpeCounter wraps a loaded tiktoken encoding.
type bpeCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *bpeCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// fallbackCounter approximates by character count.
type fallbackCounter struct{}

func (fallbackCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / charsPerTokenFallback
	if n == 0 {
		n = 1
	}
	return n
}

var (
	once    sync.Once
	shared  Counter
)

// New returns a tokenizer-backed Counter (cl100k_base), falling back to a
// character-count approximation if the encoding can't be loaded.
func New() Counter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return fallbackCounter{}
	}
	return &bpeCounter{enc: enc}
}

// Default returns a process-wide shared Counter, initialized once.
func Default() Counter {
	once.Do(func() {
		shared = New()
	})
	return shared
}
