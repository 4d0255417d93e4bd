package classifier

import (
	"testing"

	"github.com/rawblock/balance-engine/pkg/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		text string
		want models.MessageKind
	}{
		{"gdcards profile", "ПРОФИЛЬ Alice\nОрбы: 150", models.KindGDCardsProfile},
		{"gdcards accrual", "(🃏 НОВАЯ КАРТА 🃏\nИгрок: Bob\nОчки: +50", models.KindGDCardsAccrual},
		{"fishing", "🎣 [Рыбалка] 🎣\nРыбак: Bob\nМонеты: +10", models.KindFishing},
		{"karma", "Лайк! Вы повысили рейтинг пользователя Carol", models.KindKarma},
		{"mafia game end", "Игра окончена!\nПобедители:\nAlice - Мафия\nBob - Дон\n", models.KindMafiaGameEnd},
		{"mafia profile", "👤 Alice\n💎 Камни: 5\n🎎 Активная роль: Мафия\n💵 Деньги: 100", models.KindMafiaProfile},
		{"bunker game end", "Прошли в бункер:\n1. Dan\n2. Eve\n", models.KindBunkerGameEnd},
		{"bunker profile", "👤 Dan\n💎 Кристаллики: 5\n🎯 Побед: 2\n💵 Деньги: 100", models.KindBunkerProfile},
		{"unknown", "just some unrelated chat message", models.KindUnknown},
		{"empty", "", models.KindUnknown},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := Classify(c.text)
			if got != c.want {
				t.Errorf("Classify(%q) = %s, want %s", c.text, got, c.want)
			}
		})
	}
}

// Game-end markers must win over profile markers when both sets of
// substrings happen to be present, per the specified check order.
func TestClassify_OrderMattersGameEndBeforeProfile(t *testing.T) {
	text := "Игра окончена!\nПобедители:\nAlice - Мафия\n💵 Деньги: 100"
	if got := Classify(text); got != models.KindMafiaGameEnd {
		t.Errorf("Classify() = %s, want %s (game-end markers must take priority)", got, models.KindMafiaGameEnd)
	}
}

func TestClassify_Determinism(t *testing.T) {
	text := "ПРОФИЛЬ Alice\nОрбы: 150"
	first := Classify(text)
	for i := 0; i < 10; i++ {
		if got := Classify(text); got != first {
			t.Fatalf("Classify() not deterministic: run %d got %s, first run got %s", i, got, first)
		}
	}
}
