package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// Demand kinds. An "alert" is a per-token threshold subscription; a
// "pumpcheck" opts the chat into pump broadcasts.
const (
	KindAlert   = "alert"
	KindSpecial = "pumpcheck"
)

// compositeSep joins the identity fields of a demand. Tokens must not
// contain this character; symbols from the exchange never do, but the
// codec does not escape it (known constraint).
const compositeSep = "_"

// Demand is a standing notification request owned by a chat.
// Identity is the full tuple (ChatID, Kind, Token, Percentage, Interval);
// there is no surrogate key. ThreadID is delivery metadata, not identity.
type Demand struct {
	ThreadID   int    `json:"thread_id,omitempty"` // 0 = no topic thread
	ChatID     int64  `json:"chat_id"`
	Kind       string `json:"kind"`       // KindAlert or KindSpecial
	Token      string `json:"token"`      // uppercase symbol, empty for special
	Percentage int16  `json:"percentage"` // 0 = notify on any change
	Interval   string `json:"interval"`   // canonical interval name, empty for special
}

// CompositeID serializes the demand identity into an opaque token usable
// as callback data. It joins the five identity fields and base64-encodes
// the result so it survives transport untouched.
func (d Demand) CompositeID() string {
	composite := fmt.Sprintf("%d%s%s%s%s%s%d%s%s",
		d.ChatID, compositeSep, d.Kind, compositeSep, d.Token, compositeSep, d.Percentage, compositeSep, d.Interval)
	return base64.StdEncoding.EncodeToString([]byte(composite))
}

// ParseCompositeID decodes a token produced by CompositeID back into a
// demand identity. Malformed or tampered tokens yield an error, never a
// panic. The returned demand carries no thread id.
func ParseCompositeID(id string) (Demand, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return Demand{}, fmt.Errorf("composite id: decode: %w", err)
	}

	parts := strings.Split(string(raw), compositeSep)
	if len(parts) != 5 {
		return Demand{}, fmt.Errorf("composite id: want 5 fields, got %d", len(parts))
	}

	chatID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Demand{}, fmt.Errorf("composite id: chat id %q: %w", parts[0], err)
	}
	percentage, err := strconv.ParseInt(parts[3], 10, 16)
	if err != nil {
		return Demand{}, fmt.Errorf("composite id: percentage %q: %w", parts[3], err)
	}

	return Demand{
		ChatID:     chatID,
		Kind:       parts[1],
		Token:      parts[2],
		Percentage: int16(percentage),
		Interval:   parts[4],
	}, nil
}
