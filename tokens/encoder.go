package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder is the black-box tokenizer primitive the estimator is built on.
// The only assumption made about it is determinism: same text, same count.
type Encoder interface {
	// Encode splits text into token IDs.
	Encode(text string) []int
}

// tiktokenEncoder wraps a tiktoken BPE encoding.
type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenEncoder creates an Encoder backed by the named tiktoken
// encoding (e.g. "cl100k_base").
func NewTiktokenEncoder(encoding string) (Encoder, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}
	return &tiktokenEncoder{enc: enc}, nil
}

func (t *tiktokenEncoder) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// approximateTokens estimates token count from character count.
// Uses the approximation of ~4 characters per token for English text,
// with a minimum of 1 token for non-empty text.
func approximateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	tokens := (len(text) + 3) / 4
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
