// Package models holds the domain types shared across the balance engine:
// ledger entities, classified-message variants, and audit records.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Game identifies one of the external bots the engine understands, and is
// used both as the CoefficientProvider lookup key and as a BotBalance key
// component.
type Game string

const (
	GameGDCards   Game = "GD Cards"
	GameShmalala  Game = "Shmalala"
	GameKarma     Game = "Shmalala Karma"
	GameTrueMafia Game = "True Mafia"
	GameBunkerRP  Game = "Bunker RP"
)

// Fixed per-game rewards for game-end messages. Engine constants, not
// configuration (SPEC_FULL.md §6).
const (
	TrueMafiaWinnerReward = 10
	BunkerRPWinnerReward  = 30
)

// User is a single player, identified by a case-preserving display name.
// Case folding is deliberately not performed here — see SPEC_FULL.md §9.
type User struct {
	ID          int64
	UserName    string
	BankBalance decimal.Decimal
}

// BotBalance is the per-(user, game) ledger the engine maintains alongside
// the unified bank balance.
type BotBalance struct {
	UserID            int64
	Game              Game
	LastBalance       decimal.Decimal
	CurrentBotBalance decimal.Decimal
}

// MessageKind enumerates the classifier's fixed output label set.
type MessageKind string

const (
	KindGDCardsProfile MessageKind = "GDCARDS_PROFILE"
	KindGDCardsAccrual MessageKind = "GDCARDS_ACCRUAL"
	KindFishing        MessageKind = "FISHING"
	KindKarma          MessageKind = "KARMA"
	KindMafiaGameEnd   MessageKind = "MAFIA_GAME_END"
	KindMafiaProfile   MessageKind = "MAFIA_PROFILE"
	KindBunkerGameEnd  MessageKind = "BUNKER_GAME_END"
	KindBunkerProfile  MessageKind = "BUNKER_PROFILE"
	KindUnknown        MessageKind = "UNKNOWN"
)

// ProfilePayload is the parsed field set for a delta-based profile snapshot
// (GDCARDS_PROFILE, MAFIA_PROFILE, BUNKER_PROFILE).
type ProfilePayload struct {
	PlayerName string
	Amount     decimal.Decimal
}

// AccrualPayload is the parsed field set for an additive event
// (GDCARDS_ACCRUAL, FISHING, KARMA).
type AccrualPayload struct {
	PlayerName string
	Amount     decimal.Decimal
}

// GameEndPayload is the parsed field set for a fixed-reward game-end message
// (MAFIA_GAME_END, BUNKER_GAME_END). Winners preserve input order; ordering
// affects only audit records, never final ledger state.
type GameEndPayload struct {
	Winners []string
}

// ClassifiedMessage is the tagged union produced by Classifier+Parser and
// consumed by BalanceManager. Exactly one of the payload fields is set,
// selected by Kind. A single switch in MessageProcessor (internal/engine)
// dispatches on Kind to the BalanceManager operations rather than relying on
// a polymorphic collection of parser objects (SPEC_FULL.md §9).
type ClassifiedMessage struct {
	Kind    MessageKind
	Game    Game // zero value for KindUnknown
	Profile *ProfilePayload
	Accrual *AccrualPayload
	GameEnd *GameEndPayload
}

// AuditKind enumerates the kinds of structured audit records AuditLogger
// emits (SPEC_FULL.md §4.6).
type AuditKind string

const (
	AuditProfileInit   AuditKind = "profile_init"
	AuditProfileUpdate AuditKind = "profile_update"
	AuditAccrual       AuditKind = "accrual"
	AuditGameEndReward AuditKind = "game_end_reward"
	AuditError         AuditKind = "error"
)

// AuditRecord is one structured, advisory record of a balance-affecting
// operation (or of an error that prevented one). Records are emitted before
// the enclosing transaction commits so a committed ledger change always has
// a corresponding log record.
type AuditRecord struct {
	RecordID     string
	Timestamp    time.Time
	Kind         AuditKind
	MessageID    string
	Player       string
	Game         Game
	Before       decimal.Decimal
	After        decimal.Decimal
	Delta        decimal.Decimal
	Coefficient  decimal.Decimal
	BankChange   decimal.Decimal
	ErrorMessage string
}
