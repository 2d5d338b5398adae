package evaluate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"alertbot-systemv1/internal/model"
)

type fakeDemands struct {
	byInterval map[string][]model.Demand
	failFor    map[string]error
}

func (f *fakeDemands) ListByIntervalAndKind(interval, kind string) ([]model.Demand, error) {
	if err := f.failFor[interval]; err != nil {
		return nil, err
	}
	return f.byInterval[interval], nil
}

func (f *fakeDemands) Insert(model.Demand) error                  { return nil }
func (f *fakeDemands) DeleteByIdentity(model.Demand) error        { return nil }
func (f *fakeDemands) DeleteAllForChat(int64) error               { return nil }
func (f *fakeDemands) ListForChat(int64) ([]model.Demand, error)  { return nil, nil }
func (f *fakeDemands) SpecialChatIDs() ([]int64, error)           { return nil, nil }
func (f *fakeDemands) DemandCountsByChat() (map[int64]int, error) { return nil, nil }
func (f *fakeDemands) InsertChat(int64) error                     { return nil }

type fakeHistory struct {
	byInterval map[string]*model.HistorySnapshot
	err        error
}

func (f *fakeHistory) Append(model.HistorySnapshot) error { return nil }
func (f *fakeHistory) LatestTagged(name string) (*model.HistorySnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byInterval[name], nil
}

type sentMsg struct {
	chatID   int64
	threadID int
	text     string
}

type fakeNotifier struct {
	sent []sentMsg
}

func (f *fakeNotifier) Notify(_ context.Context, chatID int64, threadID int, text string) {
	f.sent = append(f.sent, sentMsg{chatID, threadID, text})
}

type fakeEscalator struct {
	reports []string
}

func (f *fakeEscalator) Escalate(_ context.Context, msg string) {
	f.reports = append(f.reports, msg)
}

func history(interval string, prices map[string]float64) *model.HistorySnapshot {
	tokens := model.TokenMap{}
	for name, p := range prices {
		tokens[name] = model.TokenInfo{Name: name, Price: p}
	}
	return &model.HistorySnapshot{TimestampMin: 1000, Intervals: []string{interval}, Tokens: tokens}
}

func TestShouldNotify(t *testing.T) {
	tests := []struct {
		name      string
		diff      float64
		threshold int16
		want      bool
	}{
		{"zero_diff_zero_threshold", 0, 0, false},
		{"below_noise_floor", 0.005, 0, false},
		{"at_noise_floor", 0.01, 0, true},
		{"rise_clears_threshold", 3, 2, true},
		{"drop_below_threshold", -3, 5, false},
		{"drop_clears_threshold", -6, 5, true},
		{"threshold_exact", 2, 2, true},
		{"noise_floor_independent_of_threshold", 0.005, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldNotify(tt.diff, tt.threshold); got != tt.want {
				t.Errorf("ShouldNotify(%v, %d) = %v, want %v", tt.diff, tt.threshold, got, tt.want)
			}
		})
	}
}

func TestRunNotifiesOnThresholdCross(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {{ChatID: 10, ThreadID: 3, Kind: model.KindAlert, Token: "WAGMI", Percentage: 2, Interval: "1h"}},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"WAGMI": 100}),
	}}
	n := &fakeNotifier{}
	esc := &fakeEscalator{}
	e := New(demands, hist, n, esc)

	current := model.TokenMap{"WAGMI": {Name: "WAGMI", Price: 103, PairNumber: 10001}}
	e.Run(context.Background(), []string{"1h"}, current)

	if len(n.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(n.sent))
	}
	msg := n.sent[0]
	if msg.chatID != 10 || msg.threadID != 3 {
		t.Errorf("recipient: %+v", msg)
	}
	if !strings.Contains(msg.text, `3\.00`) {
		t.Errorf("percent missing from %q", msg.text)
	}
	if !strings.Contains(msg.text, "risen") {
		t.Errorf("direction missing from %q", msg.text)
	}
	if !strings.Contains(msg.text, "1h") {
		t.Errorf("interval missing from %q", msg.text)
	}
	if len(esc.reports) != 0 {
		t.Errorf("unexpected escalation: %v", esc.reports)
	}
}

func TestRunNoNotifyBelowThresholdOrFloor(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {
			{ChatID: 1, Kind: model.KindAlert, Token: "FLAT", Percentage: 0, Interval: "1h"},
			{ChatID: 2, Kind: model.KindAlert, Token: "SMALL", Percentage: 5, Interval: "1h"},
		},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"FLAT": 100, "SMALL": 100}),
	}}
	n := &fakeNotifier{}
	e := New(demands, hist, n, &fakeEscalator{})

	// FLAT unchanged (diff 0 < noise floor), SMALL moved 3% but the
	// subscriber wants 5%.
	current := model.TokenMap{
		"FLAT":  {Name: "FLAT", Price: 100},
		"SMALL": {Name: "SMALL", Price: 97},
	}
	e.Run(context.Background(), []string{"1h"}, current)

	if len(n.sent) != 0 {
		t.Errorf("unexpected notifications: %v", n.sent)
	}
}

func TestRunDropDirection(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {{ChatID: 1, Kind: model.KindAlert, Token: "DOWN", Percentage: 2, Interval: "1h"}},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"DOWN": 100}),
	}}
	n := &fakeNotifier{}
	e := New(demands, hist, n, &fakeEscalator{})

	e.Run(context.Background(), []string{"1h"}, model.TokenMap{"DOWN": {Name: "DOWN", Price: 95}})

	if len(n.sent) != 1 {
		t.Fatalf("sent %d, want 1", len(n.sent))
	}
	if !strings.Contains(n.sent[0].text, "dropped") {
		t.Errorf("direction: %q", n.sent[0].text)
	}
}

func TestRunMissingPairNotifiesSubscriber(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {{ChatID: 5, Kind: model.KindAlert, Token: "GONE", Percentage: 0, Interval: "1h"}},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"GONE": 1}),
	}}
	n := &fakeNotifier{}
	esc := &fakeEscalator{}
	e := New(demands, hist, n, esc)

	e.Run(context.Background(), []string{"1h"}, model.TokenMap{})

	if len(n.sent) != 1 {
		t.Fatalf("sent %d, want 1 (no-pair diagnostic)", len(n.sent))
	}
	if !strings.Contains(n.sent[0].text, "GONE") {
		t.Errorf("diagnostic: %q", n.sent[0].text)
	}
	if len(esc.reports) != 0 {
		t.Errorf("missing pair must not escalate: %v", esc.reports)
	}
}

func TestRunMissingHistoryTokenSkipsSilently(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {{ChatID: 5, Kind: model.KindAlert, Token: "NEW", Percentage: 0, Interval: "1h"}},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"OTHER": 1}),
	}}
	n := &fakeNotifier{}
	e := New(demands, hist, n, &fakeEscalator{})

	e.Run(context.Background(), []string{"1h"}, model.TokenMap{"NEW": {Name: "NEW", Price: 2}})

	if len(n.sent) != 0 {
		t.Errorf("token absent from history must be skipped: %v", n.sent)
	}
}

func TestRunColdStartNoHistorySnapshot(t *testing.T) {
	demands := &fakeDemands{byInterval: map[string][]model.Demand{
		"1h": {{ChatID: 5, Kind: model.KindAlert, Token: "X", Percentage: 0, Interval: "1h"}},
	}}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{}}
	n := &fakeNotifier{}
	esc := &fakeEscalator{}
	e := New(demands, hist, n, esc)

	e.Run(context.Background(), []string{"1h"}, model.TokenMap{"X": {Name: "X", Price: 1}})

	if len(n.sent) != 0 || len(esc.reports) != 0 {
		t.Errorf("cold start must neither notify nor escalate: sent=%v reports=%v", n.sent, esc.reports)
	}
}

func TestRunIsolatesFailingInterval(t *testing.T) {
	demands := &fakeDemands{
		byInterval: map[string][]model.Demand{
			"1h": {{ChatID: 1, Kind: model.KindAlert, Token: "OK", Percentage: 0, Interval: "1h"}},
		},
		failFor: map[string]error{"15min": errors.New("db down")},
	}
	hist := &fakeHistory{byInterval: map[string]*model.HistorySnapshot{
		"1h": history("1h", map[string]float64{"OK": 100}),
	}}
	n := &fakeNotifier{}
	esc := &fakeEscalator{}
	e := New(demands, hist, n, esc)

	e.Run(context.Background(), []string{"15min", "1h"}, model.TokenMap{"OK": {Name: "OK", Price: 110}})

	// The healthy interval still notified.
	if len(n.sent) != 1 {
		t.Errorf("healthy interval blocked by failing sibling: sent=%v", n.sent)
	}
	// Exactly one aggregated escalation.
	if len(esc.reports) != 1 {
		t.Fatalf("escalations: %d, want 1", len(esc.reports))
	}
	if !strings.Contains(esc.reports[0], "15min") {
		t.Errorf("report lacks failing interval: %q", esc.reports[0])
	}
}
