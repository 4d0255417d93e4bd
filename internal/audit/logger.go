// Package audit emits one structured record per balance-affecting
// operation (SPEC_FULL.md §4.6): a logrus log line for operators, and a
// push onto an optional live-stream broadcaster for operational dashboards.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rawblock/balance-engine/pkg/models"
)

// Broadcaster pushes a raw payload to whatever is subscribed to the live
// audit stream (SPEC_FULL.md §2.3). It is satisfied by internal/api's Hub;
// Logger depends only on this narrow interface to avoid importing the HTTP
// layer. A nil Broadcaster is valid — records are then only logged.
type Broadcaster interface {
	Broadcast(payload []byte)
}

// Logger emits AuditRecords. Records are advisory: they are emitted before
// the enclosing transaction commits, but a failure to log or broadcast
// never fails the transaction itself.
type Logger struct {
	log         *logrus.Logger
	broadcaster Broadcaster
}

// New returns a Logger. broadcaster may be nil if no live stream is wired.
func New(log *logrus.Logger, broadcaster Broadcaster) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log, broadcaster: broadcaster}
}

// record stamps a RecordID and Timestamp (if not already set) and emits it.
func (l *Logger) record(r models.AuditRecord) {
	if r.RecordID == "" {
		r.RecordID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	fields := logrus.Fields{
		"record_id":   r.RecordID,
		"kind":        r.Kind,
		"message_id":  r.MessageID,
		"player":      r.Player,
		"game":        r.Game,
		"before":      r.Before.String(),
		"after":       r.After.String(),
		"delta":       r.Delta.String(),
		"coefficient": r.Coefficient.String(),
		"bank_change": r.BankChange.String(),
	}

	if r.Kind == models.AuditError {
		fields["error"] = r.ErrorMessage
		l.log.WithFields(fields).Error("balance engine audit event")
	} else {
		l.log.WithFields(fields).Info("balance engine audit event")
	}

	if l.broadcaster != nil {
		if payload, err := json.Marshal(r); err == nil {
			l.broadcaster.Broadcast(payload)
		} else {
			l.log.WithError(err).Warn("failed to marshal audit record for live stream")
		}
	}
}

// ProfileInit records the first-sighting anchor of a profile snapshot: no
// bank_change, since first sightings never mint currency.
func (l *Logger) ProfileInit(messageID, player string, game models.Game, observed decimal.Decimal) {
	l.record(models.AuditRecord{
		Kind:      models.AuditProfileInit,
		MessageID: messageID,
		Player:    player,
		Game:      game,
		After:     observed,
	})
}

// ProfileUpdate records a delta-based profile update.
func (l *Logger) ProfileUpdate(messageID, player string, game models.Game, before, after, delta, coefficient, bankChange decimal.Decimal) {
	l.record(models.AuditRecord{
		Kind:        models.AuditProfileUpdate,
		MessageID:   messageID,
		Player:      player,
		Game:        game,
		Before:      before,
		After:       after,
		Delta:       delta,
		Coefficient: coefficient,
		BankChange:  bankChange,
	})
}

// Accrual records an additive accrual event.
func (l *Logger) Accrual(messageID, player string, game models.Game, before, after, amount, coefficient, bankChange decimal.Decimal) {
	l.record(models.AuditRecord{
		Kind:        models.AuditAccrual,
		MessageID:   messageID,
		Player:      player,
		Game:        game,
		Before:      before,
		After:       after,
		Delta:       amount,
		Coefficient: coefficient,
		BankChange:  bankChange,
	})
}

// GameEndReward records a fixed per-winner reward credited by a game-end message.
func (l *Logger) GameEndReward(messageID, player string, game models.Game, before, after, fixedAmount, coefficient, bankChange decimal.Decimal) {
	l.record(models.AuditRecord{
		Kind:        models.AuditGameEndReward,
		MessageID:   messageID,
		Player:      player,
		Game:        game,
		Before:      before,
		After:       after,
		Delta:       fixedAmount,
		Coefficient: coefficient,
		BankChange:  bankChange,
	})
}

// Error records that processing a message failed before it could be
// committed. MessageID may be empty if the failure occurred before one
// could be derived.
func (l *Logger) Error(messageID string, err error) {
	l.record(models.AuditRecord{
		Kind:         models.AuditError,
		MessageID:    messageID,
		ErrorMessage: err.Error(),
	})
}
