// Package balance implements BalanceManager (SPEC_FULL.md §4.7): all rules
// that touch the two linked ledgers — the per-game bot balance and the
// unified bank balance — live here, nowhere else.
package balance

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

// LedgerTx is the slice of the transactional repository BalanceManager
// needs. Satisfied by *internal/db.Tx; defined here so this package can be
// tested against a fake without importing the Postgres driver.
type LedgerTx interface {
	GetOrCreateUser(ctx context.Context, name string) (models.User, error)
	GetBotBalance(ctx context.Context, userID int64, game models.Game) (models.BotBalance, bool, error)
	CreateBotBalance(ctx context.Context, userID int64, game models.Game, last, current decimal.Decimal) error
	UpdateUserBalance(ctx context.Context, userID int64, newBankBalance decimal.Decimal) error
	UpdateBotLastBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error
	UpdateBotCurrentBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error
}

// CoefficientGetter resolves a game's exchange coefficient. Satisfied by
// *internal/coefficient.Provider.
type CoefficientGetter interface {
	Get(game models.Game) (decimal.Decimal, error)
}

// AuditEmitter is the slice of AuditLogger BalanceManager calls. Satisfied
// by *internal/audit.Logger.
type AuditEmitter interface {
	ProfileInit(messageID, player string, game models.Game, observed decimal.Decimal)
	ProfileUpdate(messageID, player string, game models.Game, before, after, delta, coefficient, bankChange decimal.Decimal)
	Accrual(messageID, player string, game models.Game, before, after, amount, coefficient, bankChange decimal.Decimal)
	GameEndReward(messageID, player string, game models.Game, before, after, fixedAmount, coefficient, bankChange decimal.Decimal)
}

// Manager is the BalanceManager. It is stateless beyond its dependencies;
// all of its operations run against the LedgerTx passed in, so one Manager
// can safely serve concurrent Process(...) calls.
type Manager struct {
	coeffs CoefficientGetter
	audit  AuditEmitter
}

// New returns a Manager backed by coeffs and audit.
func New(coeffs CoefficientGetter, audit AuditEmitter) *Manager {
	return &Manager{coeffs: coeffs, audit: audit}
}

// ProcessProfile applies a delta-based profile snapshot (SPEC_FULL.md
// §4.7). First sighting anchors last_balance without touching
// bank_balance, to avoid minting phantom currency; subsequent sightings
// apply delta × coefficient(game) to bank_balance.
func (m *Manager) ProcessProfile(ctx context.Context, tx LedgerTx, messageID, player string, game models.Game, observedAmount decimal.Decimal) error {
	user, err := tx.GetOrCreateUser(ctx, player)
	if err != nil {
		return err
	}

	bb, exists, err := tx.GetBotBalance(ctx, user.ID, game)
	if err != nil {
		return err
	}

	if !exists {
		if err := tx.CreateBotBalance(ctx, user.ID, game, observedAmount, decimal.Zero); err != nil {
			return err
		}
		m.audit.ProfileInit(messageID, player, game, observedAmount)
		return nil
	}

	coefficient, err := m.coeffs.Get(game)
	if err != nil {
		return err
	}

	delta := observedAmount.Sub(bb.LastBalance)
	bankChange := delta.Mul(coefficient)
	newBankBalance := user.BankBalance.Add(bankChange)

	if err := tx.UpdateBotLastBalance(ctx, user.ID, game, observedAmount); err != nil {
		return err
	}
	if err := tx.UpdateUserBalance(ctx, user.ID, newBankBalance); err != nil {
		return err
	}

	m.audit.ProfileUpdate(messageID, player, game, bb.LastBalance, observedAmount, delta, coefficient, bankChange)
	return nil
}

// ProcessAccrual applies an additive event: current_bot_balance and
// bank_balance both increase; last_balance is never touched (the field
// separation invariant, P5).
func (m *Manager) ProcessAccrual(ctx context.Context, tx LedgerTx, messageID, player string, game models.Game, amount decimal.Decimal) error {
	user, err := tx.GetOrCreateUser(ctx, player)
	if err != nil {
		return err
	}

	bb, exists, err := tx.GetBotBalance(ctx, user.ID, game)
	if err != nil {
		return err
	}
	if !exists {
		if err := tx.CreateBotBalance(ctx, user.ID, game, decimal.Zero, decimal.Zero); err != nil {
			return err
		}
		bb = models.BotBalance{UserID: user.ID, Game: game, LastBalance: decimal.Zero, CurrentBotBalance: decimal.Zero}
	}

	coefficient, err := m.coeffs.Get(game)
	if err != nil {
		return err
	}

	newCurrent := bb.CurrentBotBalance.Add(amount)
	bankChange := amount.Mul(coefficient)
	newBankBalance := user.BankBalance.Add(bankChange)

	if err := tx.UpdateBotCurrentBalance(ctx, user.ID, game, newCurrent); err != nil {
		return err
	}
	if err := tx.UpdateUserBalance(ctx, user.ID, newBankBalance); err != nil {
		return err
	}

	m.audit.Accrual(messageID, player, game, bb.CurrentBotBalance, newCurrent, amount, coefficient, bankChange)
	return nil
}

// ProcessKarma is exactly ProcessAccrual(player, "Shmalala Karma", 1).
func (m *Manager) ProcessKarma(ctx context.Context, tx LedgerTx, messageID, player string) error {
	return m.ProcessAccrual(ctx, tx, messageID, player, models.GameKarma, decimal.NewFromInt(1))
}

// ProcessGameWinners credits fixedAmount to each winner in order, using
// accrual semantics. Ordering affects only audit records, not final state.
func (m *Manager) ProcessGameWinners(ctx context.Context, tx LedgerTx, messageID string, winners []string, game models.Game, fixedAmount decimal.Decimal) error {
	for _, winner := range winners {
		user, err := tx.GetOrCreateUser(ctx, winner)
		if err != nil {
			return err
		}
		bb, exists, err := tx.GetBotBalance(ctx, user.ID, game)
		if err != nil {
			return err
		}
		if !exists {
			if err := tx.CreateBotBalance(ctx, user.ID, game, decimal.Zero, decimal.Zero); err != nil {
				return err
			}
			bb = models.BotBalance{UserID: user.ID, Game: game, LastBalance: decimal.Zero, CurrentBotBalance: decimal.Zero}
		}

		coefficient, err := m.coeffs.Get(game)
		if err != nil {
			return err
		}

		newCurrent := bb.CurrentBotBalance.Add(fixedAmount)
		bankChange := fixedAmount.Mul(coefficient)
		newBankBalance := user.BankBalance.Add(bankChange)

		if err := tx.UpdateBotCurrentBalance(ctx, user.ID, game, newCurrent); err != nil {
			return err
		}
		if err := tx.UpdateUserBalance(ctx, user.ID, newBankBalance); err != nil {
			return err
		}

		m.audit.GameEndReward(messageID, winner, game, bb.CurrentBotBalance, newCurrent, fixedAmount, coefficient, bankChange)
	}
	return nil
}
