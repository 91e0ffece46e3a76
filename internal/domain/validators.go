package domain

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"regexp"
)

const GameCodeLength = 6

// Upper bounds that match the games columns: duration_seconds is an integer and
// stakes are numeric(20,9).
const (
	MaxDurationSeconds = math.MaxInt32
	MaxAmount          = 1e11
)

const gameCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	gameCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6}$`)
	tokenRegex    = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

// GenerateGameCode returns a 6-character uppercase alphanumeric join code.
func GenerateGameCode() (string, error) {
	buf := make([]byte, GameCodeLength)
	alphabetSize := big.NewInt(int64(len(gameCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate game code: %w", err)
		}
		buf[i] = gameCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// ValidateGameCode checks the join code format.
func ValidateGameCode(code string) error {
	if !gameCodeRegex.MatchString(code) {
		return fmt.Errorf("invalid game code: must be %d uppercase letters or digits", GameCodeLength)
	}
	return nil
}

// ValidateToken checks the currency symbol (e.g. SOL, USDC).
func ValidateToken(token string) error {
	if !tokenRegex.MatchString(token) {
		return fmt.Errorf("invalid token symbol: %s", token)
	}
	return nil
}

// ValidatePositiveAmount checks that a stake is a finite positive number below MaxAmount.
func ValidatePositiveAmount(field string, amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return fmt.Errorf("%s must be positive, got %v", field, amount)
	}
	if amount >= MaxAmount {
		return fmt.Errorf("%s must be less than %g, got %v", field, MaxAmount, amount)
	}
	return nil
}

// ValidateDuration checks the game duration in seconds.
func ValidateDuration(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("duration_seconds must be positive, got %d", seconds)
	}
	if seconds > MaxDurationSeconds {
		return fmt.Errorf("duration_seconds must be at most %d, got %d", MaxDurationSeconds, seconds)
	}
	return nil
}

// ValidateCreate checks a fully-defaulted create input.
func ValidateCreate(in CreateGameInput) error {
	if err := ValidatePositiveAmount("principal_amount", in.PrincipalAmount); err != nil {
		return err
	}
	if err := ValidatePositiveAmount("pot_amount", in.PotAmount); err != nil {
		return err
	}
	if err := ValidateToken(in.Token); err != nil {
		return err
	}
	if err := ValidateDuration(in.DurationSeconds); err != nil {
		return err
	}
	if !in.IsPrivate && in.Code != nil {
		return fmt.Errorf("game_code is only allowed for private games")
	}
	if in.Code != nil {
		if err := ValidateGameCode(*in.Code); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePatch checks the field values carried by an edit.
func ValidatePatch(p GamePatch) error {
	if p.CreatorID != nil {
		return fmt.Errorf("creator_id cannot be changed")
	}
	if p.PrincipalAmount != nil {
		if err := ValidatePositiveAmount("principal_amount", *p.PrincipalAmount); err != nil {
			return err
		}
	}
	if p.PotAmount != nil {
		if err := ValidatePositiveAmount("pot_amount", *p.PotAmount); err != nil {
			return err
		}
	}
	if p.Token != nil {
		if err := ValidateToken(*p.Token); err != nil {
			return err
		}
	}
	if p.DurationSeconds != nil {
		if err := ValidateDuration(*p.DurationSeconds); err != nil {
			return err
		}
	}
	if p.Code != nil {
		if p.IsPrivate != nil && !*p.IsPrivate {
			return fmt.Errorf("game_code is only allowed for private games")
		}
		if err := ValidateGameCode(*p.Code); err != nil {
			return err
		}
	}
	return nil
}
