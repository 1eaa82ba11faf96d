// Package pricing converts heterogeneous provider billing units into a
// comparable (pseudoUnits, costUSD) pair. Providers bill in one of four
// families (tokens, characters, audio/video seconds, or a flat price
// per generated asset) and the ledger stores a single integer unit
// column, so each non-token family is scaled by a fixed constant:
// characters and seconds by 100, fixed asset cost by 10000 (which makes
// the stored units inverse-derivable back to cost).
package pricing

import (
	"math"
	"strings"

	"github.com/rs/zerolog/log"
)

// Family declares how a provider bills. It is data, not a subclass:
// new providers contribute a family tag and a rate table.
type Family int

const (
	FamilyToken Family = iota
	FamilyCharacter
	FamilyDuration
	FamilyFixed
)

func (f Family) String() string {
	switch f {
	case FamilyToken:
		return "token"
	case FamilyCharacter:
		return "character"
	case FamilyDuration:
		return "duration"
	case FamilyFixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Rate holds the configured price for one model pattern.
// Token family: USD per 1K input/output tokens.
// Character family: Input is USD per character.
// Duration family: Input is USD per minute (computed per second).
// Fixed family: Input is USD per asset, keyed by model|size|quality.
type Rate struct {
	Input  float64
	Output float64
}

// Table maps a model pattern to its rate. Keys are matched exactly
// first, then as case-insensitive substrings of the requested model, so
// one entry like "sonnet" covers every dated Sonnet release.
type Table map[string]Rate

// Global fallback rates, used when a model matches no configured key.
// An invocation is never failed solely because pricing is unknown.
const (
	DefaultTokenInputPer1K  = 0.01
	DefaultTokenOutputPer1K = 0.03
	DefaultPerCharacter     = 0.00016
	DefaultPerMinute        = 0.0043
	DefaultPerAsset         = 0.04
)

// Scaling constants that force non-token billing into the shared
// pseudo-unit column.
const (
	UnitsPerCharacter = 100
	UnitsPerSecond    = 100
	UnitsPerUSD       = 10000
)

// Normalizer computes costs for one provider's billing family and table.
type Normalizer struct {
	provider string
	family   Family
	table    Table
}

func NewNormalizer(provider string, family Family, table Table) *Normalizer {
	return &Normalizer{provider: provider, family: family, table: table}
}

func (n *Normalizer) Family() Family { return n.family }

// Rate resolves the configured rate for model via the fallback chain:
// exact key, then case-insensitive substring, then the family default.
func (n *Normalizer) Rate(model string) Rate {
	if rate, ok := n.table[model]; ok {
		return rate
	}
	lower := strings.ToLower(model)
	for pattern, rate := range n.table {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return rate
		}
	}
	log.Warn().
		Str("provider", n.provider).
		Str("model", model).
		Str("family", n.family.String()).
		Msg("no pricing configured for model, using default rate")
	return n.defaultRate()
}

func (n *Normalizer) defaultRate() Rate {
	switch n.family {
	case FamilyCharacter:
		return Rate{Input: DefaultPerCharacter}
	case FamilyDuration:
		return Rate{Input: DefaultPerMinute}
	case FamilyFixed:
		return Rate{Input: DefaultPerAsset}
	default:
		return Rate{Input: DefaultTokenInputPer1K, Output: DefaultTokenOutputPer1K}
	}
}

// TokenCost prices native input/output token counts. The tokens
// themselves are the pseudo-units.
func (n *Normalizer) TokenCost(model string, inputTokens, outputTokens int) float64 {
	rate := n.Rate(model)
	cost := (float64(inputTokens)/1000)*rate.Input + (float64(outputTokens)/1000)*rate.Output
	return Round6(cost)
}

// CharacterCost prices a character count and returns the pseudo-unit
// equivalent (chars * 100).
func (n *Normalizer) CharacterCost(model string, characters int) (units int, costUSD float64) {
	rate := n.Rate(model)
	return characters * UnitsPerCharacter, Round6(rate.Input * float64(characters))
}

// DurationCost prices audio/video seconds at per-second granularity
// from a per-minute quote. Never rounds up to whole minutes.
func (n *Normalizer) DurationCost(model string, seconds float64) (units int, costUSD float64) {
	rate := n.Rate(model)
	return int(math.Round(seconds * UnitsPerSecond)), Round6(seconds * rate.Input / 60)
}

// FixedCost prices a flat-rate asset by (model, size, quality). The
// pseudo-units are cost*10000, so the stored units column reconstructs
// the cost without a side table.
func (n *Normalizer) FixedCost(model, size, quality string) (units int, costUSD float64) {
	key := FixedKey(model, size, quality)
	rate, ok := n.table[key]
	if !ok {
		// Degrade to the model-level entry, then the default.
		rate = n.Rate(model)
	}
	cost := Round6(rate.Input)
	return int(math.Round(cost * UnitsPerUSD)), cost
}

// FixedKey builds the fixed-family lookup key.
func FixedKey(model, size, quality string) string {
	return model + "|" + size + "|" + quality
}

// Split divides a total cost into input/output shares proportional to
// the unit counts, for billing that has no natural input/output
// division. Invariant: Round6(in)+Round6(out) == Round6(total).
func Split(costUSD float64, inputUnits, outputUnits int) (inputCost, outputCost float64) {
	total := inputUnits + outputUnits
	if total == 0 {
		return Round6(costUSD), 0
	}
	inputCost = Round6(costUSD * float64(inputUnits) / float64(total))
	outputCost = Round6(Round6(costUSD) - inputCost)
	return inputCost, outputCost
}

// Round6 rounds to 6 decimal places. Applied at computation time, not
// aggregation time, so repeated aggregation is deterministic.
func Round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
