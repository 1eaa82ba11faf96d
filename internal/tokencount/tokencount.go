// Package tokencount estimates token counts for providers that do not
// report usage in their responses (local models, batch embedding APIs).
package tokencount

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"
)

const defaultEncoding = "cl100k_base"

var (
	once sync.Once
	enc  *tiktoken.Tiktoken
)

func encoder() *tiktoken.Tiktoken {
	once.Do(func() {
		var err error
		enc, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			log.Warn().Err(err).Msg("tiktoken encoding unavailable, falling back to length estimate")
		}
	})
	return enc
}

// Count returns the token count of text. When the encoder cannot be
// loaded it falls back to the rough 4-characters-per-token estimate.
func Count(text string) int {
	if e := encoder(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return len(text) / 4
}

// CountAll sums token counts across texts.
func CountAll(texts []string) int {
	total := 0
	for _, t := range texts {
		total += Count(t)
	}
	return total
}
