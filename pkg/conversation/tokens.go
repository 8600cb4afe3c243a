package conversation

import (
	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates how many tokens a conversation occupies in a model context.
type TokenCounter struct {
	codec tokenizer.Codec
}

func NewTokenCounter(encoding tokenizer.Encoding) (*TokenCounter, error) {
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load tokenizer %s", encoding)
	}
	return &TokenCounter{codec: codec}, nil
}

// NewDefaultTokenCounter uses cl100k_base, which is close enough for most chat models.
func NewDefaultTokenCounter() (*TokenCounter, error) {
	return NewTokenCounter(tokenizer.Cl100kBase)
}

func (tc *TokenCounter) Count(c Conversation) (int, error) {
	total := 0
	for _, m := range c {
		ids, _, err := tc.codec.Encode(m.Content)
		if err != nil {
			return 0, errors.Wrapf(err, "could not encode message %d", m.Sequence)
		}
		total += len(ids)
	}
	return total, nil
}
