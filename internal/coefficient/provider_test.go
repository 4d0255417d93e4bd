package coefficient

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

func testProvider() *Provider {
	return NewFromMap(map[models.Game]decimal.Decimal{
		models.GameGDCards:   decimal.NewFromInt(2),
		models.GameShmalala:  decimal.NewFromInt(1),
		models.GameKarma:     decimal.NewFromInt(10),
		models.GameTrueMafia: decimal.NewFromInt(15),
		models.GameBunkerRP:  decimal.NewFromInt(20),
	})
}

func TestProvider_Get(t *testing.T) {
	p := testProvider()
	got, err := p.Get(models.GameGDCards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Get(GD Cards) = %s, want 2", got)
	}
}

func TestProvider_GetUnknownGame(t *testing.T) {
	p := testProvider()
	_, err := p.Get(models.Game("Unconfigured Game"))
	if !errors.Is(err, ErrUnknownGame) {
		t.Fatalf("expected ErrUnknownGame, got %v", err)
	}
}

// A Provider is immutable after construction: mutating the map passed to
// NewFromMap must not affect the Provider's own state.
func TestProvider_ImmutableAfterConstruction(t *testing.T) {
	m := map[models.Game]decimal.Decimal{
		models.GameGDCards: decimal.NewFromInt(2),
	}
	p := NewFromMap(m)
	m[models.GameGDCards] = decimal.NewFromInt(999)

	got, err := p.Get(models.GameGDCards)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(2)) {
		t.Errorf("Get(GD Cards) = %s, want 2 (provider should not see later mutation of the source map)", got)
	}
}
