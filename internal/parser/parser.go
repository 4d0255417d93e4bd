// Package parser extracts typed fields from already-classified raw text.
// Every parser here is pure and stateless: same input, same output or the
// same ParseError, per SPEC_FULL.md §4.2.
package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rawblock/balance-engine/pkg/models"
)

// ParseError signals that a classified message was missing a required
// field or the field could not be parsed. It is fatal for the message that
// produced it: the enclosing transaction is rolled back and the message is
// not marked processed (SPEC_FULL.md §7).
type ParseError struct {
	Kind   models.MessageKind
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Kind, e.Reason)
}

func newParseError(kind models.MessageKind, reason string) *ParseError {
	return &ParseError{Kind: kind, Reason: reason}
}

var (
	reGDCardsProfileName = regexp.MustCompile(`ПРОФИЛЬ\s+(\S+)`)
	reOrbs               = regexp.MustCompile(`Орбы:\s*(-?\d+)`)
	reIgrok              = regexp.MustCompile(`Игрок:[ \t]*(\S+)`)
	reOchki              = regexp.MustCompile(`Очки:\s*\+?(-?\d+)`)
	reRybak              = regexp.MustCompile(`Рыбак:[ \t]*(\S+)`)
	reMonety             = regexp.MustCompile(`Монеты:\s*\+?(-?\d+)`)
	reKarmaUser          = regexp.MustCompile(`пользователя\s+([^\s.,!?]+)`)
	rePlayerEmoji        = regexp.MustCompile(`👤\s*(\S+)`)
	reDengi              = regexp.MustCompile(`💵\s*Деньги:\s*(-?\d+)`)
	reMafiaWinnerLine    = regexp.MustCompile(`^\s*(\S.*?)\s+-\s+\S.*$`)
	reBunkerWinnerLine   = regexp.MustCompile(`^\s*\d+\.\s*(\S.*?)\s*$`)
)

// Parse dispatches a classified label to its matching parser and returns a
// fully-populated ClassifiedMessage ready for BalanceManager. Callers are
// expected to have already run Classify; passing KindUnknown is a caller
// error and returns a ParseError.
func Parse(kind models.MessageKind, text string) (*models.ClassifiedMessage, error) {
	switch kind {
	case models.KindGDCardsProfile:
		return parseGDCardsProfile(text)
	case models.KindGDCardsAccrual:
		return parseGDCardsAccrual(text)
	case models.KindFishing:
		return parseFishing(text)
	case models.KindKarma:
		return parseKarma(text)
	case models.KindMafiaProfile:
		return parseMafiaProfile(text)
	case models.KindBunkerProfile:
		return parseBunkerProfile(text)
	case models.KindMafiaGameEnd:
		return parseMafiaGameEnd(text)
	case models.KindBunkerGameEnd:
		return parseBunkerGameEnd(text)
	default:
		return nil, newParseError(kind, "no parser for this label")
	}
}

func parseDecimalField(kind models.MessageKind, re *regexp.Regexp, text, fieldName string) (decimal.Decimal, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, newParseError(kind, "missing required field "+fieldName)
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, newParseError(kind, "unparseable "+fieldName+": "+m[1])
	}
	return d, nil
}

func parseNameField(kind models.MessageKind, re *regexp.Regexp, text, fieldName string) (string, error) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", newParseError(kind, "missing required field "+fieldName)
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", newParseError(kind, "empty "+fieldName)
	}
	return name, nil
}

func parseGDCardsProfile(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindGDCardsProfile, reGDCardsProfileName, text, "player_name")
	if err != nil {
		return nil, err
	}
	orbs, err := parseDecimalField(models.KindGDCardsProfile, reOrbs, text, "orbs")
	if err != nil {
		return nil, err
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindGDCardsProfile,
		Game:    models.GameGDCards,
		Profile: &models.ProfilePayload{PlayerName: name, Amount: orbs},
	}, nil
}

func parseGDCardsAccrual(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindGDCardsAccrual, reIgrok, text, "player_name")
	if err != nil {
		return nil, err
	}
	points, err := parseDecimalField(models.KindGDCardsAccrual, reOchki, text, "points")
	if err != nil {
		return nil, err
	}
	if points.IsNegative() {
		return nil, newParseError(models.KindGDCardsAccrual, "points must be non-negative")
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindGDCardsAccrual,
		Game:    models.GameGDCards,
		Accrual: &models.AccrualPayload{PlayerName: name, Amount: points},
	}, nil
}

func parseFishing(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindFishing, reRybak, text, "player_name")
	if err != nil {
		return nil, err
	}
	coins, err := parseDecimalField(models.KindFishing, reMonety, text, "coins")
	if err != nil {
		return nil, err
	}
	if coins.IsNegative() {
		return nil, newParseError(models.KindFishing, "coins must be non-negative")
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindFishing,
		Game:    models.GameShmalala,
		Accrual: &models.AccrualPayload{PlayerName: name, Amount: coins},
	}, nil
}

func parseKarma(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindKarma, reKarmaUser, text, "player_name")
	if err != nil {
		return nil, err
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindKarma,
		Game:    models.GameKarma,
		Accrual: &models.AccrualPayload{PlayerName: name, Amount: decimal.NewFromInt(1)},
	}, nil
}

func parseMafiaProfile(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindMafiaProfile, rePlayerEmoji, text, "player_name")
	if err != nil {
		return nil, err
	}
	money, err := parseDecimalField(models.KindMafiaProfile, reDengi, text, "money")
	if err != nil {
		return nil, err
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindMafiaProfile,
		Game:    models.GameTrueMafia,
		Profile: &models.ProfilePayload{PlayerName: name, Amount: money},
	}, nil
}

func parseBunkerProfile(text string) (*models.ClassifiedMessage, error) {
	name, err := parseNameField(models.KindBunkerProfile, rePlayerEmoji, text, "player_name")
	if err != nil {
		return nil, err
	}
	money, err := parseDecimalField(models.KindBunkerProfile, reDengi, text, "money")
	if err != nil {
		return nil, err
	}
	return &models.ClassifiedMessage{
		Kind:    models.KindBunkerProfile,
		Game:    models.GameBunkerRP,
		Profile: &models.ProfilePayload{PlayerName: name, Amount: money},
	}, nil
}

// parseWinnerBlock scans the lines following a section header for winner
// entries, stopping at the first blank line, the first line lineRE does not
// match, or end of text. lineRE must
// have exactly one capture group: the winner name.
func parseWinnerBlock(text, header string, lineRE *regexp.Regexp) []string {
	idx := strings.Index(text, header)
	if idx < 0 {
		return nil
	}
	rest := text[idx+len(header):]
	// Skip the remainder of the header's own line before scanning winner lines.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}

	var winners []string
	for _, line := range strings.Split(rest, "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		m := lineRE.FindStringSubmatch(line)
		if m == nil {
			break
		}
		name := strings.TrimSpace(m[1])
		if name != "" {
			winners = append(winners, name)
		}
	}
	return winners
}

func parseMafiaGameEnd(text string) (*models.ClassifiedMessage, error) {
	if !strings.Contains(text, "Победители:") {
		return nil, newParseError(models.KindMafiaGameEnd, "missing Победители: section")
	}
	winners := parseWinnerBlock(text, "Победители:", reMafiaWinnerLine)
	return &models.ClassifiedMessage{
		Kind:    models.KindMafiaGameEnd,
		Game:    models.GameTrueMafia,
		GameEnd: &models.GameEndPayload{Winners: winners},
	}, nil
}

func parseBunkerGameEnd(text string) (*models.ClassifiedMessage, error) {
	const header = "Прошли в бункер:"
	if !strings.Contains(text, header) {
		return nil, newParseError(models.KindBunkerGameEnd, "missing "+header+" section")
	}
	winners := parseWinnerBlock(text, header, reBunkerWinnerLine)
	return &models.ClassifiedMessage{
		Kind:    models.KindBunkerGameEnd,
		Game:    models.GameBunkerRP,
		GameEnd: &models.GameEndPayload{Winners: winners},
	}, nil
}
