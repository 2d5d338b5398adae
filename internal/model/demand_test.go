package model

import (
	"encoding/base64"
	"testing"
)

// TestCompositeIDRoundTrip verifies decode(encode(d)) == d for a range
// of demand identities, including negative group chat ids.
func TestCompositeIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		d    Demand
	}{
		{"alert", Demand{ChatID: 123456, Kind: KindAlert, Token: "WAGMI", Percentage: 3, Interval: "15min"}},
		{"alert_zero_pct", Demand{ChatID: 42, Kind: KindAlert, Token: "PURR", Percentage: 0, Interval: "1h"}},
		{"group_chat", Demand{ChatID: -1001234567890, Kind: KindAlert, Token: "HYPE", Percentage: 10, Interval: "24h"}},
		{"special", Demand{ChatID: 7, Kind: KindSpecial}},
		{"negative_pct", Demand{ChatID: 9, Kind: KindAlert, Token: "BTC", Percentage: -5, Interval: "wed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCompositeID(tt.d.CompositeID())
			if err != nil {
				t.Fatalf("ParseCompositeID: %v", err)
			}
			if got != tt.d {
				t.Errorf("round trip: got %+v, want %+v", got, tt.d)
			}
		})
	}
}

// TestParseCompositeIDRejectsMalformed verifies that tampered or
// malformed tokens produce an error, never a panic or a bogus demand.
func TestParseCompositeIDRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"empty", ""},
		{"not_base64", "!!not-base64!!"},
		{"too_few_fields", base64.StdEncoding.EncodeToString([]byte("1_alert_BTC"))},
		{"too_many_fields", base64.StdEncoding.EncodeToString([]byte("1_alert_BTC_3_1h_extra"))},
		{"bad_chat_id", base64.StdEncoding.EncodeToString([]byte("abc_alert_BTC_3_1h"))},
		{"bad_percentage", base64.StdEncoding.EncodeToString([]byte("1_alert_BTC_xx_1h"))},
		{"percentage_overflow", base64.StdEncoding.EncodeToString([]byte("1_alert_BTC_99999_1h"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCompositeID(tt.id); err == nil {
				t.Errorf("ParseCompositeID(%q): expected error", tt.id)
			}
		})
	}
}
