package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

type fakeLedger struct {
	users   map[string]models.User
	nextID  int64
	bots    map[string]models.BotBalance // key: user_name|game
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users: make(map[string]models.User),
		bots:  make(map[string]models.BotBalance),
	}
}

func (f *fakeLedger) botKey(userID int64, game models.Game) string {
	for name, u := range f.users {
		if u.ID == userID {
			return name + "|" + string(game)
		}
	}
	return ""
}

func (f *fakeLedger) GetOrCreateUser(ctx context.Context, name string) (models.User, error) {
	if u, ok := f.users[name]; ok {
		return u, nil
	}
	f.nextID++
	u := models.User{ID: f.nextID, UserName: name, BankBalance: decimal.Zero}
	f.users[name] = u
	return u, nil
}

func (f *fakeLedger) GetBotBalance(ctx context.Context, userID int64, game models.Game) (models.BotBalance, bool, error) {
	key := f.botKey(userID, game)
	bb, ok := f.bots[key]
	return bb, ok, nil
}

func (f *fakeLedger) CreateBotBalance(ctx context.Context, userID int64, game models.Game, last, current decimal.Decimal) error {
	key := f.botKey(userID, game)
	f.bots[key] = models.BotBalance{UserID: userID, Game: game, LastBalance: last, CurrentBotBalance: current}
	return nil
}

func (f *fakeLedger) UpdateUserBalance(ctx context.Context, userID int64, newBankBalance decimal.Decimal) error {
	for name, u := range f.users {
		if u.ID == userID {
			u.BankBalance = newBankBalance
			f.users[name] = u
			return nil
		}
	}
	return errors.New("user not found")
}

func (f *fakeLedger) UpdateBotLastBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error {
	key := f.botKey(userID, game)
	bb := f.bots[key]
	bb.LastBalance = value
	f.bots[key] = bb
	return nil
}

func (f *fakeLedger) UpdateBotCurrentBalance(ctx context.Context, userID int64, game models.Game, value decimal.Decimal) error {
	key := f.botKey(userID, game)
	bb := f.bots[key]
	bb.CurrentBotBalance = value
	f.bots[key] = bb
	return nil
}

type fakeCoefficients struct {
	values map[models.Game]decimal.Decimal
}

func (f *fakeCoefficients) Get(game models.Game) (decimal.Decimal, error) {
	v, ok := f.values[game]
	if !ok {
		return decimal.Decimal{}, errors.New("unknown game")
	}
	return v, nil
}

type fakeAudit struct {
	profileInits   int
	profileUpdates int
	accruals       int
	gameEnds       int
}

func (f *fakeAudit) ProfileInit(messageID, player string, game models.Game, observed decimal.Decimal) {
	f.profileInits++
}
func (f *fakeAudit) ProfileUpdate(messageID, player string, game models.Game, before, after, delta, coefficient, bankChange decimal.Decimal) {
	f.profileUpdates++
}
func (f *fakeAudit) Accrual(messageID, player string, game models.Game, before, after, amount, coefficient, bankChange decimal.Decimal) {
	f.accruals++
}
func (f *fakeAudit) GameEndReward(messageID, player string, game models.Game, before, after, fixedAmount, coefficient, bankChange decimal.Decimal) {
	f.gameEnds++
}

func TestProcessProfile_FirstSightingAnchorsWithoutBankChange(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameGDCards: decimal.NewFromFloat(0.5)}}
	audit := &fakeAudit{}
	m := New(coeffs, audit)

	if err := m.ProcessProfile(context.Background(), ledger, "m1", "Alice", models.GameGDCards, decimal.NewFromInt(150)); err != nil {
		t.Fatalf("ProcessProfile() error = %v", err)
	}

	u := ledger.users["Alice"]
	if !u.BankBalance.Equal(decimal.Zero) {
		t.Errorf("bank_balance = %s, want 0 on first sighting", u.BankBalance)
	}
	bb := ledger.bots["Alice|"+string(models.GameGDCards)]
	if !bb.LastBalance.Equal(decimal.NewFromInt(150)) {
		t.Errorf("last_balance = %s, want 150", bb.LastBalance)
	}
	if audit.profileInits != 1 {
		t.Errorf("profileInits = %d, want 1", audit.profileInits)
	}
}

func TestProcessProfile_SubsequentSightingAppliesDeltaTimesCoefficient(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameGDCards: decimal.NewFromFloat(0.5)}}
	audit := &fakeAudit{}
	m := New(coeffs, audit)

	ctx := context.Background()
	if err := m.ProcessProfile(ctx, ledger, "m1", "Alice", models.GameGDCards, decimal.NewFromInt(150)); err != nil {
		t.Fatalf("first ProcessProfile() error = %v", err)
	}
	if err := m.ProcessProfile(ctx, ledger, "m2", "Alice", models.GameGDCards, decimal.NewFromInt(200)); err != nil {
		t.Fatalf("second ProcessProfile() error = %v", err)
	}

	u := ledger.users["Alice"]
	want := decimal.NewFromInt(50).Mul(decimal.NewFromFloat(0.5))
	if !u.BankBalance.Equal(want) {
		t.Errorf("bank_balance = %s, want %s", u.BankBalance, want)
	}
	if audit.profileUpdates != 1 {
		t.Errorf("profileUpdates = %d, want 1", audit.profileUpdates)
	}
}

func TestProcessProfile_DecreaseAppliesNegativeDelta(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameGDCards: decimal.NewFromInt(1)}}
	m := New(coeffs, &fakeAudit{})
	ctx := context.Background()

	_ = m.ProcessProfile(ctx, ledger, "m1", "Alice", models.GameGDCards, decimal.NewFromInt(150))
	_ = m.ProcessProfile(ctx, ledger, "m2", "Alice", models.GameGDCards, decimal.NewFromInt(100))

	u := ledger.users["Alice"]
	want := decimal.NewFromInt(-50)
	if !u.BankBalance.Equal(want) {
		t.Errorf("bank_balance = %s, want %s (negative bank balances are permitted)", u.BankBalance, want)
	}
}

func TestProcessAccrual_NeverTouchesLastBalance(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameShmalala: decimal.NewFromInt(2)}}
	audit := &fakeAudit{}
	m := New(coeffs, audit)
	ctx := context.Background()

	if err := m.ProcessAccrual(ctx, ledger, "m1", "Bob", models.GameShmalala, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("ProcessAccrual() error = %v", err)
	}

	bb := ledger.bots["Bob|"+string(models.GameShmalala)]
	if !bb.LastBalance.Equal(decimal.Zero) {
		t.Errorf("last_balance = %s, want untouched 0", bb.LastBalance)
	}
	if !bb.CurrentBotBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("current_bot_balance = %s, want 10", bb.CurrentBotBalance)
	}
	u := ledger.users["Bob"]
	if !u.BankBalance.Equal(decimal.NewFromInt(20)) {
		t.Errorf("bank_balance = %s, want 20", u.BankBalance)
	}
	if audit.accruals != 1 {
		t.Errorf("accruals = %d, want 1", audit.accruals)
	}
}

func TestProcessKarma_IsAccrualOfOneOnKarmaGame(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameKarma: decimal.NewFromInt(3)}}
	m := New(coeffs, &fakeAudit{})

	if err := m.ProcessKarma(context.Background(), ledger, "m1", "Carl"); err != nil {
		t.Fatalf("ProcessKarma() error = %v", err)
	}

	u := ledger.users["Carl"]
	if !u.BankBalance.Equal(decimal.NewFromInt(3)) {
		t.Errorf("bank_balance = %s, want 3", u.BankBalance)
	}
	bb := ledger.bots["Carl|"+string(models.GameKarma)]
	if !bb.CurrentBotBalance.Equal(decimal.NewFromInt(1)) {
		t.Errorf("current_bot_balance = %s, want 1", bb.CurrentBotBalance)
	}
}

func TestProcessGameWinners_CreditsEachWinnerInOrder(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameTrueMafia: decimal.NewFromInt(1)}}
	audit := &fakeAudit{}
	m := New(coeffs, audit)

	winners := []string{"Alice", "Bob"}
	err := m.ProcessGameWinners(context.Background(), ledger, "m1", winners, models.GameTrueMafia, decimal.NewFromInt(models.TrueMafiaWinnerReward))
	if err != nil {
		t.Fatalf("ProcessGameWinners() error = %v", err)
	}

	for _, name := range winners {
		u := ledger.users[name]
		if !u.BankBalance.Equal(decimal.NewFromInt(models.TrueMafiaWinnerReward)) {
			t.Errorf("%s bank_balance = %s, want %d", name, u.BankBalance, models.TrueMafiaWinnerReward)
		}
	}
	if audit.gameEnds != 2 {
		t.Errorf("gameEnds = %d, want 2", audit.gameEnds)
	}
}

func TestProcessGameWinners_EmptyWinnersIsANoop(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{models.GameBunkerRP: decimal.NewFromInt(1)}}
	m := New(coeffs, &fakeAudit{})

	if err := m.ProcessGameWinners(context.Background(), ledger, "m1", nil, models.GameBunkerRP, decimal.NewFromInt(models.BunkerRPWinnerReward)); err != nil {
		t.Fatalf("ProcessGameWinners() with no winners error = %v", err)
	}
}

func TestProcessAccrual_UnknownGameCoefficientFails(t *testing.T) {
	ledger := newFakeLedger()
	coeffs := &fakeCoefficients{values: map[models.Game]decimal.Decimal{}}
	m := New(coeffs, &fakeAudit{})

	err := m.ProcessAccrual(context.Background(), ledger, "m1", "Dave", models.GameShmalala, decimal.NewFromInt(5))
	if err == nil {
		t.Fatal("expected error for unconfigured game coefficient, got nil")
	}
}
