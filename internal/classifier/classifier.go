// Package classifier maps raw chat text to one of the fixed message labels
// the engine understands, by presence of distinguishing literal substrings.
package classifier

import (
	"strings"

	"github.com/rawblock/balance-engine/pkg/models"
)

// Classify is a pure function of its input: identical text always yields
// identical labels. Order matters where substrings overlap — game-end
// markers are checked first, then profile markers (which carry the
// currency symbol), then activity markers, then karma, per SPEC_FULL.md §4.1.
func Classify(text string) models.MessageKind {
	switch {
	case strings.Contains(text, "Игра окончена!") && strings.Contains(text, "Победители:"):
		return models.KindMafiaGameEnd
	case strings.Contains(text, "Прошли в бункер:"):
		return models.KindBunkerGameEnd

	case strings.Contains(text, "ПРОФИЛЬ") && strings.Contains(text, "Орбы:"):
		return models.KindGDCardsProfile
	case strings.Contains(text, "💎 Камни:") && strings.Contains(text, "🎎 Активная роль:") && strings.Contains(text, "💵 Деньги:"):
		return models.KindMafiaProfile
	case strings.Contains(text, "💎 Кристаллики:") && strings.Contains(text, "🎯 Побед:") && strings.Contains(text, "💵 Деньги:"):
		return models.KindBunkerProfile

	case strings.Contains(text, "(🃏 НОВАЯ КАРТА 🃏"):
		return models.KindGDCardsAccrual
	case strings.Contains(text, "🎣 [Рыбалка] 🎣"):
		return models.KindFishing

	case strings.Contains(text, "Лайк! Вы повысили рейтинг пользователя"):
		return models.KindKarma

	default:
		return models.KindUnknown
	}
}
