// Package engine implements MessageProcessor, the C8 orchestrator
// (SPEC_FULL.md §4.8): one call to Process runs a raw chat message through
// idempotency-check, classification, parsing, and balance application as a
// single atomic unit of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/internal/balance"
	"github.com/rawblock/balance-engine/internal/classifier"
	"github.com/rawblock/balance-engine/internal/coefficient"
	"github.com/rawblock/balance-engine/internal/idempotency"
	"github.com/rawblock/balance-engine/internal/parser"
	"github.com/rawblock/balance-engine/pkg/models"
)

// Sentinel errors MessageProcessor wraps its failures in, so callers (the
// HTTP layer) can distinguish retry-worthy failures from permanently bad
// input without inspecting error strings (SPEC_FULL.md §7).
var (
	ErrParseFailed    = errors.New("engine: message failed to parse")
	ErrUnknownGame    = errors.New("engine: coefficient not configured for game")
	ErrStorageFailed  = errors.New("engine: storage operation failed")
	ErrCancelled      = errors.New("engine: context cancelled before processing completed")
	ErrAlreadyHandled = errors.New("engine: message already processed")
)

// Repository is the slice of the Store this engine needs to open and close
// a transaction, plus the pre-check used before opening one. It embeds
// idempotency.Store so a Repository can back an idempotency.Checker.
// Satisfied by cmd/engine's repositoryAdapter around *internal/db.Store.
type Repository interface {
	idempotency.Store
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is the transactional handle the engine drives directly (commit/
// rollback/mark-processed) and hands to BalanceManager for ledger
// mutations. Satisfied by *internal/db.Tx.
type Tx interface {
	balance.LedgerTx
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// AuditEmitter additionally exposes Error, used outside BalanceManager's
// own success-path calls when Process fails before or after dispatch.
type AuditEmitter interface {
	balance.AuditEmitter
	Error(messageID string, err error)
}

// MessageProcessor is the C8 orchestrator.
type MessageProcessor struct {
	repo    Repository
	checker *idempotency.Checker
	manager *balance.Manager
	audit   AuditEmitter
}

// New returns a MessageProcessor. The pre-check against repo and the
// in-transaction mark-processed call both go through an idempotency.Checker
// (C5); Process builds a second Checker scoped to each transaction, since
// MarkProcessed must run against the Tx, not the pool, per I3.
func New(repo Repository, manager *balance.Manager, audit AuditEmitter) *MessageProcessor {
	return &MessageProcessor{repo: repo, checker: idempotency.New(repo), manager: manager, audit: audit}
}

// Process runs the full pipeline for one raw message (SPEC_FULL.md §4.8):
//
//  1. derive the message ID and pre-check for a duplicate
//  2. open a transaction
//  3. classify; an unknown label commits an empty transaction and marks the
//     message processed, since there is nothing further to do with it
//  4. parse the classified label into typed fields
//  5. dispatch to BalanceManager
//  6. mark the message processed and commit, atomically with step 5
//
// Any failure from step 3 onward rolls back the transaction via the
// deferred Rollback below; the message is left unprocessed so an operator
// can fix the root cause (a parser gap, an unconfigured game, a storage
// outage) and safely replay the exact same text (SPEC_FULL.md §4.2, §7).
func (p *MessageProcessor) Process(ctx context.Context, rawText string, timestamp time.Time) error {
	messageID := idempotency.MessageID(rawText, timestamp)

	if done, err := p.checker.IsProcessed(ctx, messageID); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorageFailed, err)
		p.audit.Error(messageID, wrapped)
		return wrapped
	} else if done {
		return ErrAlreadyHandled
	}

	tx, err := p.repo.BeginTx(ctx)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorageFailed, err)
		p.audit.Error(messageID, wrapped)
		return wrapped
	}
	defer tx.Rollback(ctx)
	txChecker := idempotency.New(tx)

	kind := classifier.Classify(rawText)
	if kind == models.KindUnknown {
		if err := txChecker.MarkProcessed(ctx, messageID); err != nil {
			wrapped := fmt.Errorf("%w: %v", ErrStorageFailed, err)
			p.audit.Error(messageID, wrapped)
			return wrapped
		}
		return commitOrWrap(ctx, tx, messageID, p.audit)
	}

	msg, err := parser.Parse(kind, rawText)
	if err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrParseFailed, err)
		p.audit.Error(messageID, wrapped)
		return wrapped
	}

	if err := p.dispatch(ctx, tx, messageID, msg); err != nil {
		return p.wrapDispatchError(messageID, err)
	}

	if err := txChecker.MarkProcessed(ctx, messageID); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorageFailed, err)
		p.audit.Error(messageID, wrapped)
		return wrapped
	}

	return commitOrWrap(ctx, tx, messageID, p.audit)
}

func (p *MessageProcessor) dispatch(ctx context.Context, tx Tx, messageID string, msg *models.ClassifiedMessage) error {
	switch msg.Kind {
	case models.KindGDCardsProfile, models.KindMafiaProfile, models.KindBunkerProfile:
		return p.manager.ProcessProfile(ctx, tx, messageID, msg.Profile.PlayerName, msg.Game, msg.Profile.Amount)

	case models.KindGDCardsAccrual, models.KindFishing:
		return p.manager.ProcessAccrual(ctx, tx, messageID, msg.Accrual.PlayerName, msg.Game, msg.Accrual.Amount)

	case models.KindKarma:
		return p.manager.ProcessKarma(ctx, tx, messageID, msg.Accrual.PlayerName)

	case models.KindMafiaGameEnd:
		return p.manager.ProcessGameWinners(ctx, tx, messageID, msg.GameEnd.Winners, models.GameTrueMafia, decimalFromInt(models.TrueMafiaWinnerReward))

	case models.KindBunkerGameEnd:
		return p.manager.ProcessGameWinners(ctx, tx, messageID, msg.GameEnd.Winners, models.GameBunkerRP, decimalFromInt(models.BunkerRPWinnerReward))

	default:
		return fmt.Errorf("engine: no dispatch rule for classified kind %s", msg.Kind)
	}
}

func (p *MessageProcessor) wrapDispatchError(messageID string, err error) error {
	var wrapped error
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		wrapped = fmt.Errorf("%w: %v", ErrCancelled, err)
	case errors.Is(err, coefficient.ErrUnknownGame):
		wrapped = fmt.Errorf("%w: %v", ErrUnknownGame, err)
	default:
		wrapped = fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	p.audit.Error(messageID, wrapped)
	return wrapped
}

func decimalFromInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

func commitOrWrap(ctx context.Context, tx Tx, messageID string, audit AuditEmitter) error {
	if err := tx.Commit(ctx); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrStorageFailed, err)
		audit.Error(messageID, wrapped)
		return wrapped
	}
	return nil
}
