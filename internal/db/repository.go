// Package db is the Postgres-backed Repository (SPEC_FULL.md §4.4): it
// persists users, per-game bot balances, and the processed-message set,
// and exposes transactional semantics so a single Process(...) call's
// mutations are either all visible together or not at all.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

// StorageError wraps a transient or persistent repository failure. Callers
// may retry a StorageError unless they determine otherwise (SPEC_FULL.md §7).
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// Store owns the connection pool and opens scoped transactions.
type Store struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether the connection pool can currently reach PostgreSQL.
func (s *Store) Ping(ctx context.Context) error {
	return storageErr("Ping", s.pool.Ping(ctx))
}

// InitSchema loads and executes the schema.sql file describing the three
// ledger tables of SPEC_FULL.md §6.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/db/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	return nil
}

// IsProcessed performs a quick, non-transactional check of whether
// messageID has already been committed — step 2 of MessageProcessor,
// before a transaction is opened (SPEC_FULL.md §4.8). It is advisory: the
// authoritative, race-proof guarantee comes from the unique constraint on
// message_id enforced when MarkProcessed runs inside the commit transaction.
func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = $1)`, messageID).Scan(&exists)
	if err != nil {
		return false, storageErr("IsProcessed", err)
	}
	return exists, nil
}

// MarkProcessed is exposed on Store for tests and ad-hoc tooling; the
// production path always marks a message processed inside the same
// transaction as its ledger effects via Tx.MarkProcessed.
func (s *Store) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO processed_messages (message_id, processed_at) VALUES ($1, NOW())`, messageID)
	return storageErr("MarkProcessed", err)
}

// BeginTx opens a scoped transaction. Callers MUST defer tx.Rollback(ctx)
// immediately after a successful BeginTx; only an explicit Commit prevents
// the deferred rollback from discarding the work, so a transaction is
// never leaked on an early return, error, or panic.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("BeginTx", err)
	}
	return &Tx{tx: pgxTx}, nil
}

// Tx is a single scoped repository transaction (SPEC_FULL.md §9 "Transaction
// scoping"). Every mutation made through it becomes visible together on
// Commit, or vanishes entirely on Rollback.
type Tx struct {
	tx pgx.Tx
}

// Commit finalizes the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	return storageErr("Commit", t.tx.Commit(ctx))
}

// Rollback discards the transaction. Calling Rollback after a successful
// Commit is a harmless no-op (pgx returns pgx.ErrTxClosed, which this
// method swallows), matching the defer-rollback idiom used throughout.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err != nil && errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return storageErr("Rollback", err)
}

// GetOrCreateUser returns the existing user row for name, locking it FOR
// UPDATE so the bank_balance read here stays valid until commit, or creates
// one with a zero bank balance on first sighting.
func (t *Tx) GetOrCreateUser(ctx context.Context, name string) (models.User, error) {
	var u models.User
	var balanceText string

	err := t.tx.QueryRow(ctx, `SELECT user_id, user_name, bank_balance FROM user_balances WHERE user_name = $1 FOR UPDATE`, name).
		Scan(&u.ID, &u.UserName, &balanceText)
	if err == nil {
		bal, perr := decimal.NewFromString(balanceText)
		if perr != nil {
			return models.User{}, storageErr("GetOrCreateUser", perr)
		}
		u.BankBalance = bal
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, storageErr("GetOrCreateUser", err)
	}

	u = models.User{UserName: name, BankBalance: decimal.Zero}
	err = t.tx.QueryRow(ctx,
		`INSERT INTO user_balances (user_name, bank_balance) VALUES ($1, $2) RETURNING user_id`,
		name, u.BankBalance.String(),
	).Scan(&u.ID)
	if err != nil {
		return models.User{}, storageErr("GetOrCreateUser/insert", err)
	}
	return u, nil
}

// GetBotBalance returns the BotBalance row for (userID, game), locking it
// FOR UPDATE so concurrent Process(...) calls on the same pair serialize
// here rather than racing on the subsequent read-compute-write
// (SPEC_FULL.md §5). The boolean result is false if no row exists yet.
func (t *Tx) GetBotBalance(ctx context.Context, userID int64, game models.Game) (models.BotBalance, bool, error) {
	var bb models.BotBalance
	var gameText, lastText, currentText string

	err := t.tx.QueryRow(ctx,
		`SELECT user_id, game, last_balance, current_bot_balance
		   FROM bot_balances WHERE user_id = $1 AND game = $2 FOR UPDATE`,
		userID, string(game),
	).Scan(&bb.UserID, &gameText, &lastText, &currentText)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.BotBalance{}, false, nil
	}
	if err != nil {
		return models.BotBalance{}, false, storageErr("GetBotBalance", err)
	}

	last, perr := decimal.NewFromString(lastText)
	if perr != nil {
		return models.BotBalance{}, false, storageErr("GetBotBalance", perr)
	}
	current, perr := decimal.NewFromString(currentText)
	if perr != nil {
		return models.BotBalance{}, false, storageErr("GetBotBalance", perr)
	}
	bb.Game = models.Game(gameText)
	bb.LastBalance = last
	bb.CurrentBotBalance = current
	return bb, true, nil
}

// CreateBotBalance inserts a new BotBalance row. Callers must have already
// established, via GetBotBalance and under the user-row lock taken by
// GetOrCreateUser, that no row exists for (userID, game) — see I1.
func (t *Tx) CreateBotBalance(ctx context.Context, userID int64, game models.Game, last, current decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bot_balances (user_id, game, last_balance, current_bot_balance) VALUES ($1, $2, $3, $4)`,
		userID, string(game), last.String(), current.String(),
	)
	return storageErr("CreateBotBalance", err)
}

// UpdateUserBalance writes the user's new bank_balance.
func (t *Tx) UpdateUserBalance(ctx context.Context, userID int64, newBankBalance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE user_balances SET bank_balance = $1 WHERE user_id = $2`, newBankBalance.String(), userID)
	return storageErr("UpdateUserBalance", err)
}

// UpdateBotLastBalance writes the last_balance field of a BotBalance row
// without touching current_bot_balance (P5 / the delta-path/accrual-path
// field separation invariant).
func (t *Tx) UpdateBotLastBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bot_balances SET last_balance = $1 WHERE user_id = $2 AND game = $3`,
		value.String(), userID, string(game),
	)
	return storageErr("UpdateBotLastBalance", err)
}

// UpdateBotCurrentBalance writes the current_bot_balance field of a
// BotBalance row without touching last_balance.
func (t *Tx) UpdateBotCurrentBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE bot_balances SET current_bot_balance = $1 WHERE user_id = $2 AND game = $3`,
		value.String(), userID, string(game),
	)
	return storageErr("UpdateBotCurrentBalance", err)
}

// IsProcessed checks the processed_messages set within this transaction.
func (t *Tx) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_messages WHERE message_id = $1)`, messageID).Scan(&exists)
	if err != nil {
		return false, storageErr("IsProcessed", err)
	}
	return exists, nil
}

// MarkProcessed records messageID as processed inside this transaction, so
// it commits atomically with the ledger effects it guards (I3). A
// concurrent duplicate attempt fails the unique constraint on message_id,
// rolling back that attempt — the correct outcome, since the other attempt
// has already applied the effect (SPEC_FULL.md §5).
func (t *Tx) MarkProcessed(ctx context.Context, messageID string) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO processed_messages (message_id, processed_at) VALUES ($1, NOW())`, messageID)
	return storageErr("MarkProcessed", err)
}
