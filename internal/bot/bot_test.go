package bot

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"alertbot-systemv1/internal/demand"
	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/pkg/telegram"
)

const (
	testBotID   = 7000001
	adminUserID = 111
	plainUserID = 222
	testChatID  = int64(-100555)
)

// memStore is an in-memory model.DemandStore for command-flow tests.
type memStore struct {
	demands []model.Demand
	chats   []int64
}

func (m *memStore) Insert(d model.Demand) error {
	for _, e := range m.demands {
		if sameIdentity(e, d) {
			return model.ErrDuplicate
		}
	}
	m.demands = append(m.demands, d)
	return nil
}

func (m *memStore) DeleteByIdentity(d model.Demand) error {
	for i, e := range m.demands {
		if sameIdentity(e, d) {
			m.demands = append(m.demands[:i], m.demands[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *memStore) DeleteAllForChat(chatID int64) error {
	var kept []model.Demand
	for _, e := range m.demands {
		if e.ChatID != chatID {
			kept = append(kept, e)
		}
	}
	m.demands = kept
	return nil
}

func (m *memStore) ListForChat(chatID int64) ([]model.Demand, error) {
	var out []model.Demand
	for _, e := range m.demands {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListByIntervalAndKind(interval, kind string) ([]model.Demand, error) {
	var out []model.Demand
	for _, e := range m.demands {
		if e.Interval == interval && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) SpecialChatIDs() ([]int64, error) {
	var out []int64
	for _, e := range m.demands {
		if e.Kind == model.KindSpecial {
			out = append(out, e.ChatID)
		}
	}
	return out, nil
}

func (m *memStore) DemandCountsByChat() (map[int64]int, error) {
	counts := map[int64]int{}
	for _, e := range m.demands {
		counts[e.ChatID]++
	}
	return counts, nil
}

func (m *memStore) InsertChat(chatID int64) error {
	m.chats = append(m.chats, chatID)
	return nil
}

func sameIdentity(a, b model.Demand) bool {
	return a.ChatID == b.ChatID && a.Kind == b.Kind && a.Token == b.Token &&
		a.Percentage == b.Percentage && a.Interval == b.Interval
}

// fakeAPI records every outbound Telegram call.
type fakeAPI struct {
	sent     []telegram.SendMessageRequest
	deleted  []int
	answered []string
	admins   []telegram.ChatMember
}

func (f *fakeAPI) SendMessage(_ context.Context, req telegram.SendMessageRequest) error {
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) GetUpdates(context.Context, int64) ([]telegram.Update, error) {
	return nil, nil
}

func (f *fakeAPI) GetChatAdministrators(context.Context, int64) ([]telegram.ChatMember, error) {
	return f.admins, nil
}

func (f *fakeAPI) SetMyCommands(context.Context, []telegram.BotCommand) error { return nil }

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, callbackID, _ string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

type fakeSymbols struct{ known map[string]bool }

func (f *fakeSymbols) Has(symbol string) bool { return f.known[symbol] }

type fakeEscalator struct{ msgs []string }

func (f *fakeEscalator) Escalate(_ context.Context, msg string) { f.msgs = append(f.msgs, msg) }

type fixture struct {
	bot   *Bot
	api   *fakeAPI
	store *memStore
	esc   *fakeEscalator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &memStore{}
	svc := demand.NewService(store, demand.NewCounts(999999))
	api := &fakeAPI{admins: []telegram.ChatMember{
		{User: telegram.User{ID: adminUserID}, Status: "administrator"},
	}}
	esc := &fakeEscalator{}
	symbols := &fakeSymbols{known: map[string]bool{"WAGMI": true, "PURR": true}}
	return &fixture{
		bot:   New(api, svc, symbols, esc, testBotID),
		api:   api,
		store: store,
		esc:   esc,
	}
}

func adminMessage(text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: adminUserID},
		Chat:      telegram.Chat{ID: testChatID, Type: "supergroup"},
		Text:      text,
	}}
}

func (f *fixture) lastSent(t *testing.T) telegram.SendMessageRequest {
	t.Helper()
	if len(f.api.sent) == 0 {
		t.Fatalf("no message sent")
	}
	return f.api.sent[len(f.api.sent)-1]
}

// TestParseCommand covers command-name extraction, including the
// @BotName mention suffix used in groups.
func TestParseCommand(t *testing.T) {
	cases := []struct {
		text     string
		wantName string
		wantArgs []string
		wantOK   bool
	}{
		{"/help", "help", nil, true},
		{"/setalert WAGMI 15min 3", "setalert", []string{"WAGMI", "15min", "3"}, true},
		{"/demands@WagmiAlertBot", "demands", nil, true},
		{"/FREE", "free", nil, true},
		{"hello", "", nil, false},
		{"", "", nil, false},
	}
	for _, tc := range cases {
		name, args, ok := parseCommand(tc.text)
		if ok != tc.wantOK || name != tc.wantName {
			t.Fatalf("parseCommand(%q) = %q, %v; want %q, %v", tc.text, name, ok, tc.wantName, tc.wantOK)
		}
		if len(args) != len(tc.wantArgs) {
			t.Fatalf("parseCommand(%q) args = %v, want %v", tc.text, args, tc.wantArgs)
		}
		for i := range args {
			if args[i] != tc.wantArgs[i] {
				t.Fatalf("parseCommand(%q) args = %v, want %v", tc.text, args, tc.wantArgs)
			}
		}
	}
}

// TestParseAlertArgs validates the /setalert argument grammar.
func TestParseAlertArgs(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		token   string
		pct     int16
		wantErr bool
	}{
		{"full form", []string{"wagmi", "15min", "3"}, "WAGMI", 3, false},
		{"percentage omitted", []string{"WAGMI", "1h"}, "WAGMI", 0, false},
		{"too few args", []string{"WAGMI"}, "", 0, true},
		{"too many args", []string{"WAGMI", "1h", "3", "extra"}, "", 0, true},
		{"bad percentage", []string{"WAGMI", "1h", "three"}, "", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			token, _, pct, err := parseAlertArgs(tc.args)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if err == nil && (token != tc.token || pct != tc.pct) {
				t.Fatalf("got %q/%d, want %q/%d", token, pct, tc.token, tc.pct)
			}
		})
	}
}

// TestSetAlertStoresDemand runs the full /setalert path: token
// uppercased and validated, interval normalized, demand persisted, and
// a confirmation sent back to the chat.
func TestSetAlertStoresDemand(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), adminMessage("/setalert wagmi 15m 3"))

	if len(f.store.demands) != 1 {
		t.Fatalf("stored demands = %d, want 1", len(f.store.demands))
	}
	d := f.store.demands[0]
	if d.Token != "WAGMI" || d.Interval != "15min" || d.Percentage != 3 || d.Kind != model.KindAlert {
		t.Fatalf("stored demand = %+v", d)
	}
	reply := f.lastSent(t)
	if reply.ChatID != testChatID || !strings.Contains(reply.Text, "Alert set for token WAGMI at interval 15min for percentage 3") {
		t.Fatalf("reply = %+v", reply)
	}
}

// TestSetAlertRejectsUnknownToken checks validation against the live
// symbol list.
func TestSetAlertRejectsUnknownToken(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), adminMessage("/setalert NOPE 15min"))

	if len(f.store.demands) != 0 {
		t.Fatalf("demand stored for unknown token")
	}
	if !strings.Contains(f.lastSent(t).Text, "doesn't exist") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestSetAlertQuota checks the fourth insert for a chat is refused.
func TestSetAlertQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, tok := range []string{"WAGMI 15min", "WAGMI 1h", "PURR 15min"} {
		f.bot.HandleUpdate(ctx, adminMessage("/setalert "+tok))
	}
	if len(f.store.demands) != 3 {
		t.Fatalf("stored demands = %d, want 3", len(f.store.demands))
	}

	f.bot.HandleUpdate(ctx, adminMessage("/setalert PURR 1h"))
	if len(f.store.demands) != 3 {
		t.Fatalf("quota not enforced, %d demands stored", len(f.store.demands))
	}
	if !strings.Contains(f.lastSent(t).Text, "max demand reached") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestNonAdminIgnored checks that commands from regular members are
// silently dropped.
func TestNonAdminIgnored(t *testing.T) {
	f := newFixture(t)

	u := adminMessage("/setalert WAGMI 15min")
	u.Message.From = &telegram.User{ID: plainUserID}
	f.bot.HandleUpdate(context.Background(), u)

	if len(f.store.demands) != 0 || len(f.api.sent) != 0 {
		t.Fatalf("non-admin command was processed")
	}
}

// TestBotSenderRejected checks that another bot, even one promoted to
// admin, cannot issue commands.
func TestBotSenderRejected(t *testing.T) {
	f := newFixture(t)
	f.api.admins = append(f.api.admins, telegram.ChatMember{
		User: telegram.User{ID: 333, IsBot: true}, Status: "administrator",
	})

	u := adminMessage("/free")
	u.Message.From = &telegram.User{ID: 333, IsBot: true}
	f.bot.HandleUpdate(context.Background(), u)

	if len(f.store.demands) != 0 {
		t.Fatalf("bot command was processed")
	}
	if !strings.Contains(f.lastSent(t).Text, "⚠️ Error:") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestFreeDeletesAll checks /free wipes the chat's demands and confirms.
func TestFreeDeletesAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, adminMessage("/setalert WAGMI 15min"))
	f.bot.HandleUpdate(ctx, adminMessage("/setalert PURR 1h 5"))

	f.bot.HandleUpdate(ctx, adminMessage("/free"))

	if len(f.store.demands) != 0 {
		t.Fatalf("demands remain after /free: %v", f.store.demands)
	}
	if !strings.Contains(f.lastSent(t).Text, "All your alerts have been deleted") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestDemandsListsWithButtons checks the numbered list and the
// chatID_compositeID callback data on each delete button.
func TestDemandsListsWithButtons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, adminMessage("/setalert WAGMI 15min 3"))

	f.bot.HandleUpdate(ctx, adminMessage("/demands"))

	reply := f.lastSent(t)
	if !strings.Contains(reply.Text, "Here is your alerts") {
		t.Fatalf("list text = %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "*WAGMI* price change for 3% for 15min") {
		t.Fatalf("list text = %q", reply.Text)
	}
	if reply.ReplyMarkup == nil || len(reply.ReplyMarkup.InlineKeyboard) != 1 {
		t.Fatalf("keyboard = %+v", reply.ReplyMarkup)
	}
	wantData := fmt.Sprintf("%d_%s", testChatID, f.store.demands[0].CompositeID())
	button := reply.ReplyMarkup.InlineKeyboard[0][0]
	if button.Text != "0" || button.CallbackData != wantData {
		t.Fatalf("button = %+v, want data %q", button, wantData)
	}
}

// TestDemandsEmpty checks the empty-list reply carries no keyboard.
func TestDemandsEmpty(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), adminMessage("/demands"))

	reply := f.lastSent(t)
	if !strings.Contains(reply.Text, "No alert set for now") || reply.ReplyMarkup != nil {
		t.Fatalf("reply = %+v", reply)
	}
}

// TestSpecialToggle covers /special on and off, including switching
// off when no pump subscription exists.
func TestSpecialToggle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, adminMessage("/special on"))
	ids, _ := f.store.SpecialChatIDs()
	if !reflect.DeepEqual(ids, []int64{testChatID}) {
		t.Fatalf("special chats = %v", ids)
	}
	if !strings.Contains(f.lastSent(t).Text, "Pump alert set") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}

	f.bot.HandleUpdate(ctx, adminMessage("/special off"))
	if ids, _ := f.store.SpecialChatIDs(); len(ids) != 0 {
		t.Fatalf("special chats = %v after off", ids)
	}

	// Switching off again is not an error.
	f.bot.HandleUpdate(ctx, adminMessage("/special off"))
	if !strings.Contains(f.lastSent(t).Text, "Pump alert suppressed") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}

	f.bot.HandleUpdate(ctx, adminMessage("/special maybe"))
	if !strings.Contains(f.lastSent(t).Text, "/special on or off") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestCallbackDeletesDemand runs the delete-button flow end to end:
// demand removed, confirmation sent, keyboard message deleted, and the
// callback answered.
func TestCallbackDeletesDemand(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, adminMessage("/setalert WAGMI 15min 3"))

	data := fmt.Sprintf("%d_%s", testChatID, f.store.demands[0].CompositeID())
	f.bot.HandleUpdate(ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb1",
		From: telegram.User{ID: adminUserID},
		Message: &telegram.Message{
			MessageID: 42,
			Chat:      telegram.Chat{ID: testChatID},
		},
		Data: data,
	}})

	if len(f.store.demands) != 0 {
		t.Fatalf("demand not deleted")
	}
	if !strings.Contains(f.lastSent(t).Text, "Demand erased") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
	if !reflect.DeepEqual(f.api.deleted, []int{42}) {
		t.Fatalf("deleted messages = %v, want [42]", f.api.deleted)
	}
	if !reflect.DeepEqual(f.api.answered, []string{"cb1"}) {
		t.Fatalf("answered callbacks = %v", f.api.answered)
	}
}

// TestCallbackChatMismatch checks a callback replayed in another chat
// deletes nothing.
func TestCallbackChatMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.bot.HandleUpdate(ctx, adminMessage("/setalert WAGMI 15min 3"))

	data := fmt.Sprintf("%d_%s", testChatID, f.store.demands[0].CompositeID())
	f.bot.HandleUpdate(ctx, telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:   "cb2",
		From: telegram.User{ID: adminUserID},
		Message: &telegram.Message{
			MessageID: 43,
			Chat:      telegram.Chat{ID: testChatID + 1},
		},
		Data: data,
	}})

	if len(f.store.demands) != 1 {
		t.Fatalf("demand deleted despite chat mismatch")
	}
	if !strings.Contains(f.lastSent(t).Text, "chat id mismatch") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}
}

// TestInviteRegistersChat checks the bot greets and registers a group
// it was just added to, and ignores other new members.
func TestInviteRegistersChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.bot.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		Chat:           telegram.Chat{ID: testChatID, Type: "group"},
		NewChatMembers: []telegram.User{{ID: testBotID, IsBot: true}},
	}})

	if !reflect.DeepEqual(f.store.chats, []int64{testChatID}) {
		t.Fatalf("registered chats = %v, want [%d]", f.store.chats, testChatID)
	}
	if !strings.Contains(f.lastSent(t).Text, "Thanks for adding me") {
		t.Fatalf("reply = %q", f.lastSent(t).Text)
	}

	f.api.sent = nil
	f.bot.HandleUpdate(ctx, telegram.Update{Message: &telegram.Message{
		Chat:           telegram.Chat{ID: testChatID, Type: "group"},
		NewChatMembers: []telegram.User{{ID: 12345}},
	}})
	if len(f.api.sent) != 0 || len(f.store.chats) != 1 {
		t.Fatalf("unrelated member join triggered welcome")
	}
}
