package tokens

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Chunk is a contiguous slice of a larger text, with byte offsets into the
// original string.
type Chunk struct {
	Text       string
	StartIndex int
	EndIndex   int
}

// SplitTextIntoChunks lazily splits text into chunks of at most
// maxTokensPerChunk tokens each. Chunk boundaries prefer whitespace so words
// stay intact; a chunk may slightly exceed the limit due to counting
// granularity when a single unbroken run of text is longer than the limit.
//
// The returned sequence is finite and restartable: ranging over it again
// yields the same chunks from the beginning.
func (e *Estimator) SplitTextIntoChunks(text string, maxTokensPerChunk int) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		if text == "" || maxTokensPerChunk <= 0 {
			return
		}

		start := 0
		for start < len(text) {
			rest := text[start:]
			if e.CountTokens(rest) <= maxTokensPerChunk {
				yield(Chunk{Text: rest, StartIndex: start, EndIndex: len(text)})
				return
			}

			cut := len(e.TruncateToTokens(rest, maxTokensPerChunk))
			if cut == 0 {
				// A single rune exceeds the limit; emit it anyway so the
				// sequence stays finite.
				_, size := utf8.DecodeRuneInString(rest)
				cut = size
			} else if ws := lastWhitespaceBoundary(rest[:cut]); ws > 0 {
				cut = ws
			}

			if !yield(Chunk{Text: rest[:cut], StartIndex: start, EndIndex: start + cut}) {
				return
			}
			start += cut
		}
	}
}

// lastWhitespaceBoundary returns the index just past the last whitespace run
// in s, or 0 if s contains no whitespace.
func lastWhitespaceBoundary(s string) int {
	idx := strings.LastIndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == '\r'
	})
	if idx < 0 {
		return 0
	}
	_, size := utf8.DecodeRuneInString(s[idx:])
	return idx + size
}
