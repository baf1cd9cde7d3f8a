package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/jwebster45206/d20"

	"github.com/mitchellwinn/pioneer-online-sub002/pkg/conversation"
)

// FlagStore is the slice of storage the built-in commands need
type FlagStore interface {
	GetFlags(ctx context.Context, playerID string) (map[string]string, error)
	SetFlag(ctx context.Context, playerID, key, value string) error
}

// SpeakerHandler resolves the Speaker substitution: Speaker|<speaker_id>
// yields a presentable nametag from the id.
func SpeakerHandler() conversation.HandlerFunc {
	return func(ctx context.Context, args []string) (string, error) {
		if len(args) == 0 || args[0] == "" {
			return "", nil
		}
		return conversation.DisplayName(args[0]), nil
	}
}

// SetFlagHandler builds the set_flag command for one player:
// set_flag|<key>|<value> writes a flag the condition evaluator can see.
func SetFlagHandler(store FlagStore, playerID string) conversation.HandlerFunc {
	return func(ctx context.Context, args []string) (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("set_flag needs a key and a value, got %v", args)
		}
		return "", store.SetFlag(ctx, playerID, args[0], args[1])
	}
}

// FlagHandler builds the flag substitution for one player: %flag|<key>%
// splices the flag's current value into visible text.
func FlagHandler(store FlagStore, playerID string) conversation.HandlerFunc {
	return func(ctx context.Context, args []string) (string, error) {
		if len(args) == 0 {
			return "", fmt.Errorf("flag needs a key")
		}
		flags, err := store.GetFlags(ctx, playerID)
		if err != nil {
			return "", err
		}
		return flags[args[0]], nil
	}
}

// CheckHandler builds the check command for one player:
//
//	check|<attribute>|<difficulty>|<result flag>
//
// It rolls a d20 plus the player's attribute (numeric flags double as the
// stat sheet) against the difficulty and records the outcome in the flag
// store: the flag itself gets "true"/"false" and <flag>_roll the total, so
// conditional branches can route on either. The total is also returned as
// the substitution value.
//
// roll overrides the die for tests; nil uses a fair d20.
func CheckHandler(store FlagStore, playerID string, roll func() int, logger *slog.Logger) conversation.HandlerFunc {
	if roll == nil {
		roll = func() int { return rand.IntN(20) + 1 }
	}
	return func(ctx context.Context, args []string) (string, error) {
		if len(args) < 3 {
			return "", fmt.Errorf("check needs attribute, difficulty and result flag, got %v", args)
		}
		attribute, flag := args[0], args[2]
		difficulty, err := strconv.Atoi(args[1])
		if err != nil {
			return "", fmt.Errorf("invalid check difficulty %q: %w", args[1], err)
		}

		flags, err := store.GetFlags(ctx, playerID)
		if err != nil {
			return "", err
		}
		attrs := make(map[string]int, len(flags))
		for k, v := range flags {
			if n, err := strconv.Atoi(v); err == nil {
				attrs[k] = n
			}
		}

		actorID := playerID
		if actorID == "" {
			actorID = "player"
		}
		actor, err := d20.NewActor(actorID).
			WithHP(10).
			WithAC(10).
			WithAttributes(attrs).
			Build()
		if err != nil {
			return "", fmt.Errorf("failed to build actor: %w", err)
		}

		modifier, _ := actor.Attribute(attribute)
		total := roll() + modifier
		passed := total >= difficulty

		if err := store.SetFlag(ctx, playerID, flag, strconv.FormatBool(passed)); err != nil {
			return "", err
		}
		if err := store.SetFlag(ctx, playerID, flag+"_roll", strconv.Itoa(total)); err != nil {
			return "", err
		}

		logger.Debug("Check resolved",
			"player_id", playerID,
			"attribute", attribute,
			"difficulty", difficulty,
			"total", total,
			"passed", passed)
		return strconv.Itoa(total), nil
	}
}
