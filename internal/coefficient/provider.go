// Package coefficient loads the immutable game→coefficient mapping the
// engine uses to convert in-game currency deltas into bank-balance changes.
package coefficient

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

// ErrUnknownGame is returned by Get when no coefficient is configured for
// the requested game.
var ErrUnknownGame = errors.New("coefficient: unknown game")

// Provider is an immutable game→coefficient mapping. Construct one with
// Load; a configuration reload requires constructing a new Provider rather
// than mutating an existing one (SPEC_FULL.md §4.3).
type Provider struct {
	coefficients map[models.Game]decimal.Decimal
}

// Load reads a JSON file of the form {"GD Cards": 2, ...} via koanf's file
// provider and builds an immutable Provider from it. Every game the engine
// dispatches to (§6) must have a key in the file; a missing key is a
// startup error.
func Load(path string) (*Provider, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), json.Parser()); err != nil {
		return nil, fmt.Errorf("coefficient: load %s: %w", path, err)
	}

	raw := k.All()
	coefficients := make(map[models.Game]decimal.Decimal, len(raw))
	for key, value := range raw {
		d, err := toDecimal(value)
		if err != nil {
			return nil, fmt.Errorf("coefficient: game %q: %w", key, err)
		}
		coefficients[models.Game(key)] = d
	}

	required := []models.Game{
		models.GameGDCards,
		models.GameShmalala,
		models.GameKarma,
		models.GameTrueMafia,
		models.GameBunkerRP,
	}
	for _, g := range required {
		if _, ok := coefficients[g]; !ok {
			return nil, fmt.Errorf("coefficient: missing required game %q in %s", g, path)
		}
	}

	return &Provider{coefficients: coefficients}, nil
}

// NewFromMap builds a Provider directly from an in-memory mapping, for
// tests and for callers that already have the configuration parsed.
func NewFromMap(m map[models.Game]decimal.Decimal) *Provider {
	cp := make(map[models.Game]decimal.Decimal, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return &Provider{coefficients: cp}
}

// GameCount returns how many games this Provider has a coefficient for,
// surfaced on /api/v1/health for operator visibility into configuration drift.
func (p *Provider) GameCount() int {
	return len(p.coefficients)
}

// Get returns the coefficient configured for game, or ErrUnknownGame if
// none is configured.
func (p *Provider) Get(game models.Game) (decimal.Decimal, error) {
	d, ok := p.coefficients[game]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownGame, game)
	}
	return d, nil
}

func toDecimal(value interface{}) (decimal.Decimal, error) {
	switch v := value.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case string:
		return decimal.NewFromString(v)
	default:
		return decimal.Zero, fmt.Errorf("unsupported coefficient value type %T", value)
	}
}
