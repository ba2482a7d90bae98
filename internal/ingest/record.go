package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Record types produced by the platform connectors.
const (
	TypeChat        = "chat"
	TypeLike        = "like"
	TypeShare       = "share"
	TypeFollow      = "follow"
	TypeGift        = "gift"
	TypeJoin        = "join"
	TypeWatchTime   = "watch_time"
	TypeSpin        = "spin"
	TypeManualAward = "manual_award"
	TypeIFTTTAward  = "ifttt_award"
	TypeOptOut      = "opt_out"
	TypeOptIn       = "opt_in"
)

var ErrMalformed = errors.New("malformed record")

// Record is one normalized viewer activity.
type Record struct {
	Type              string `json:"type"`
	EventID           string `json:"eventId,omitempty"`
	Username          string `json:"username"`
	UserID            string `json:"userId"`
	UniqueID          string `json:"uniqueId,omitempty"`
	Nickname          string `json:"nickname,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
	GiftName          string `json:"giftName,omitempty"`
	Coins             int64  `json:"coins,omitempty"`
	RepeatCount       int64  `json:"repeatCount,omitempty"`
	Comment           string `json:"comment,omitempty"`
	LikeCount         int64  `json:"likeCount,omitempty"`
	Bet               int64  `json:"bet,omitempty"`
	Amount            int64  `json:"amount,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Minutes           int64  `json:"minutes,omitempty"`
}

// Validate rejects records no handler can use.
func (r *Record) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("%w: missing type", ErrMalformed)
	}
	if strings.TrimSpace(r.Username) == "" {
		return fmt.Errorf("%w: missing username", ErrMalformed)
	}
	switch r.Type {
	case TypeGift:
		if r.Coins < 0 || r.RepeatCount < 0 {
			return fmt.Errorf("%w: negative gift value", ErrMalformed)
		}
	case TypeManualAward, TypeIFTTTAward:
		if r.Amount <= 0 {
			return fmt.Errorf("%w: %s needs a positive amount", ErrMalformed, r.Type)
		}
	case TypeWatchTime:
		if r.Minutes < 0 {
			return fmt.Errorf("%w: negative minutes", ErrMalformed)
		}
	case TypeSpin:
		if r.Bet < 0 {
			return fmt.Errorf("%w: negative bet", ErrMalformed)
		}
	}
	return nil
}

type command struct {
	name string
	arg  string
}

// parseCommand recognizes "!name [arg]" chat messages.
func parseCommand(comment string) (command, bool) {
	fields := strings.Fields(comment)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "!") {
		return command{}, false
	}
	cmd := command{name: strings.ToLower(strings.TrimPrefix(fields[0], "!"))}
	if len(fields) > 1 {
		cmd.arg = fields[1]
	}
	return cmd, true
}

// parseBet reads the bet of "!spin <bet>". An empty argument means the
// default bet.
func parseBet(arg string) (int64, error) {
	if arg == "" {
		return 0, nil
	}
	bet, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || bet < 0 {
		return 0, fmt.Errorf("invalid bet %q", arg)
	}
	return bet, nil
}
