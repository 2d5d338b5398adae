// Package bot runs the Telegram update loop: command handling, the
// delete-button callback flow, and group-invite registration. Only chat
// administrators may issue commands, and messages from other bots are
// rejected outright.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"alertbot-systemv1/internal/demand"
	"alertbot-systemv1/internal/model"
	"alertbot-systemv1/internal/schedule"
	"alertbot-systemv1/pkg/telegram"
)

// pollRetryDelay separates getUpdates attempts after a poll error.
const pollRetryDelay = 3 * time.Second

const welcomeMessage = "Hello everyone\\! I'm your friendly bot 🤖\\. Thanks for adding me to the group\\!"

const helpMessage = "🤖 __*Wagmi Alert Bot*__\n\n" +
	"__*Commands:*__\n" +
	"\\- `/free` → Delete all alerts\n" +
	"\\- `/special` → \\(on/start\\)/\\(off/stop\\) erase or activate pump alert\n" +
	"\\- `/demands` → Show all your alerts\\. Click to erase one\n" +
	"\\- `/setalert TOKEN INTERVAL PERCENTAGE` → Set alert for token\n\n" +
	"__*Intervals:*__\n" +
	"\\- 15min/15m → Every 15 minutes\n" +
	"\\- 1h/hourly → Every hour\n" +
	"\\- 6h → Every 6 hours\n" +
	"\\- 24h/daily → Every afternoon \\(15 UTC\\)\n" +
	"\\- mon/wed/fri/sat → Respective day at 12:00 UTC\n\n" +
	"__*Examples:*__\n" +
	"`/setalert WAGMI 15min 3` → Alert on 3% WAGMI changes\n" +
	"`/setalert WAGMI 1h` → Track all WAGMI price updates in 1h\n\n" +
	"__*Note:*__ Only admins can use commands\\. " +
	"Set percentage to 0 or omit it for all price updates\\."

// API is the slice of the Telegram client the bot drives.
type API interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
	GetChatAdministrators(ctx context.Context, chatID int64) ([]telegram.ChatMember, error)
	SetMyCommands(ctx context.Context, commands []telegram.BotCommand) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

// SymbolIndex answers whether a symbol exists in the current market.
type SymbolIndex interface {
	Has(symbol string) bool
}

// Escalator reports operational errors to the moderation channel.
type Escalator interface {
	Escalate(ctx context.Context, msg string)
}

// Bot is the Telegram front end.
type Bot struct {
	api      API
	demands  *demand.Service
	symbols  SymbolIndex
	escalate Escalator
	botID    int64
	offset   int64
}

// New wires the bot. botID is the bot's own user id, used to detect
// when the bot itself is invited into a group.
func New(api API, demands *demand.Service, symbols SymbolIndex, escalate Escalator, botID int64) *Bot {
	return &Bot{
		api:      api,
		demands:  demands,
		symbols:  symbols,
		escalate: escalate,
		botID:    botID,
	}
}

// Run registers the command menu and long-polls for updates until ctx
// is cancelled. Poll errors are logged and retried after a short delay.
func (b *Bot) Run(ctx context.Context) {
	if err := b.api.SetMyCommands(ctx, commandMenu()); err != nil {
		log.Printf("[bot] set commands: %v", err)
	}

	log.Printf("[bot] update loop started")
	for {
		updates, err := b.api.GetUpdates(ctx, b.offset)
		if err != nil {
			if ctx.Err() != nil {
				log.Printf("[bot] update loop stopped")
				return
			}
			log.Printf("[bot] poll: %v", err)
			select {
			case <-ctx.Done():
				log.Printf("[bot] update loop stopped")
				return
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, u := range updates {
			b.HandleUpdate(ctx, u)
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
		}
	}
}

func commandMenu() []telegram.BotCommand {
	return []telegram.BotCommand{
		{Command: "free", Description: "Delete all your alerts"},
		{Command: "demands", Description: "Show all your alerts"},
		{Command: "setalert", Description: "Set an alert"},
		{Command: "special", Description: "Start or stop the pump check"},
		{Command: "help", Description: "Show usage"},
	}
}

// HandleUpdate routes one update to the message or callback path.
func (b *Bot) HandleUpdate(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		b.handleMessage(ctx, *u.Message)
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, *u.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg telegram.Message) {
	if b.handleInvite(ctx, msg) {
		return
	}

	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return
	}

	if !b.isFromAdmin(ctx, msg.Chat.ID, msg.From) {
		return
	}
	if msg.From != nil && msg.From.IsBot {
		b.sendError(ctx, msg.Chat.ID, msg.ThreadID, "bots cannot issue commands")
		return
	}

	var reply string
	var err error
	switch name {
	case "free":
		reply, err = b.handleFree(msg.Chat.ID)
	case "demands":
		reply, err = b.handleDemands(ctx, msg.Chat.ID, msg.ThreadID)
	case "setalert":
		reply, err = b.handleSetAlert(msg.Chat.ID, msg.ThreadID, args)
	case "special":
		reply, err = b.handleSpecial(msg.Chat.ID, msg.ThreadID, args)
	case "help":
		reply = helpMessage
	default:
		return
	}

	if err != nil {
		log.Printf("[bot] /%s in chat %d: %v", name, msg.Chat.ID, err)
		b.sendError(ctx, msg.Chat.ID, msg.ThreadID, err.Error())
		return
	}
	if reply != "" {
		b.sendText(ctx, msg.Chat.ID, msg.ThreadID, reply)
	}
}

// handleInvite registers the chat and greets it when the bot itself is
// among the new members. Returns true when the message was an invite.
func (b *Bot) handleInvite(ctx context.Context, msg telegram.Message) bool {
	for _, u := range msg.NewChatMembers {
		if u.ID != b.botID {
			continue
		}
		if err := b.demands.Store().InsertChat(msg.Chat.ID); err != nil {
			log.Printf("[bot] register invited chat %d: %v", msg.Chat.ID, err)
		}
		b.sendText(ctx, msg.Chat.ID, 0, welcomeMessage)
		log.Printf("[bot] added to chat %d", msg.Chat.ID)
		return true
	}
	return false
}

// isFromAdmin reports whether the sender administers the chat. Lookup
// failures are logged and treated as not-admin.
func (b *Bot) isFromAdmin(ctx context.Context, chatID int64, from *telegram.User) bool {
	if from == nil {
		return false
	}
	admins, err := b.api.GetChatAdministrators(ctx, chatID)
	if err != nil {
		log.Printf("[bot] admin lookup for chat %d: %v", chatID, err)
		return false
	}
	for _, m := range admins {
		if m.User.ID == from.ID {
			return true
		}
	}
	return false
}

func (b *Bot) handleFree(chatID int64) (string, error) {
	if err := b.demands.Free(chatID); err != nil {
		log.Printf("[bot] free chat %d: %v", chatID, err)
		return "", fmt.Errorf("failed to delete alerts, please try again later")
	}
	log.Printf("[bot] deleted alerts for chat %d", chatID)
	return "All your alerts have been deleted", nil
}

func (b *Bot) handleDemands(ctx context.Context, chatID int64, threadID int) (string, error) {
	demands, err := b.demands.Store().ListForChat(chatID)
	if err != nil {
		b.escalate.Escalate(ctx, fmt.Sprintf("list demands for chat %d: %v", chatID, err))
		return "", fmt.Errorf("failed to fetch demands, please try again later")
	}
	if len(demands) == 0 {
		return "No alert set for now", nil
	}

	msg := "__*Here is your alerts*__:\n"
	var rows [][]telegram.InlineKeyboardButton
	for i, d := range demands {
		msg += fmt.Sprintf("%s \n__%d__: %s\n", strings.Repeat("\\-", 9), i, b.formatDemand(ctx, d))
		rows = append(rows, []telegram.InlineKeyboardButton{{
			Text:         strconv.Itoa(i),
			CallbackData: fmt.Sprintf("%d_%s", chatID, d.CompositeID()),
		}})
	}
	msg += "\n*Choose which one you want to delete*:"

	err = b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		ThreadID:    threadID,
		Text:        msg,
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		log.Printf("[bot] send demand list to chat %d: %v", chatID, err)
	}
	return "", nil
}

func (b *Bot) formatDemand(ctx context.Context, d model.Demand) string {
	switch d.Kind {
	case model.KindAlert:
		pct := ""
		if d.Percentage != 0 {
			pct = fmt.Sprintf("for %d%% ", d.Percentage)
		}
		return fmt.Sprintf("*%s* price change %sfor %s", telegram.EscapeMarkdown(d.Token), pct, d.Interval)
	case model.KindSpecial:
		return "*Special* demand"
	default:
		b.escalate.Escalate(ctx, fmt.Sprintf("unknown demand kind %q for chat %d", d.Kind, d.ChatID))
		return "Unexpected demand"
	}
}

func (b *Bot) handleSetAlert(chatID int64, threadID int, args []string) (string, error) {
	token, interval, percentage, err := parseAlertArgs(args)
	if err != nil {
		return "", err
	}

	if !b.symbols.Has(token) {
		return "", fmt.Errorf("token '%s' doesn't exist", token)
	}
	canonical, ok := schedule.ParseInterval(interval)
	if !ok {
		return "", fmt.Errorf("invalid interval: %s", interval)
	}

	err = b.demands.Insert(model.Demand{
		ChatID:     chatID,
		ThreadID:   threadID,
		Kind:       model.KindAlert,
		Token:      token,
		Percentage: percentage,
		Interval:   canonical,
	})
	switch {
	case errors.Is(err, model.ErrDuplicate):
		return "", fmt.Errorf("demand already exists")
	case err != nil:
		return "", err
	}

	reply := fmt.Sprintf("Alert set for token %s at interval %s", telegram.EscapeMarkdown(token), canonical)
	if percentage != 0 {
		reply += fmt.Sprintf(" for percentage %d", percentage)
	}
	return reply, nil
}

func (b *Bot) handleSpecial(chatID int64, threadID int, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("/special on or off")
	}

	d := model.Demand{ChatID: chatID, ThreadID: threadID, Kind: model.KindSpecial}
	switch strings.ToLower(args[0]) {
	case "on", "start":
		err := b.demands.Insert(d)
		if errors.Is(err, model.ErrDuplicate) {
			return "", fmt.Errorf("pump alert already set for this channel")
		}
		if err != nil {
			return "", err
		}
		return "Pump alert set for this channel", nil
	case "off", "stop":
		err := b.demands.Delete(d)
		if err != nil && !errors.Is(err, model.ErrNotFound) {
			return "", err
		}
		return "Pump alert suppressed for this channel", nil
	default:
		return "", fmt.Errorf("/special on or off")
	}
}

func (b *Bot) handleCallback(ctx context.Context, q telegram.CallbackQuery) {
	defer func() {
		if err := b.api.AnswerCallbackQuery(ctx, q.ID, ""); err != nil {
			log.Printf("[bot] answer callback %s: %v", q.ID, err)
		}
	}()

	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	threadID := q.Message.ThreadID

	if q.Data == "" {
		b.sendError(ctx, chatID, threadID, "callback data is empty")
		return
	}
	chatPart, compositeID, ok := strings.Cut(q.Data, "_")
	if !ok {
		b.sendError(ctx, chatID, threadID, fmt.Sprintf("invalid callback data format: %s", q.Data))
		return
	}
	claimedChat, err := strconv.ParseInt(chatPart, 10, 64)
	if err != nil {
		b.sendError(ctx, chatID, threadID, fmt.Sprintf("invalid chat id format: %s", chatPart))
		return
	}

	d, err := model.ParseCompositeID(compositeID)
	if err != nil {
		b.sendError(ctx, chatID, threadID, fmt.Sprintf("failed to parse demand id: %v", err))
		return
	}
	if chatID != d.ChatID || d.ChatID != claimedChat {
		b.sendError(ctx, chatID, threadID, fmt.Sprintf("chat id mismatch: %d != %d", chatID, d.ChatID))
		return
	}
	if !b.isFromAdmin(ctx, chatID, &q.From) {
		return
	}

	if err := b.demands.DeleteByCompositeID(compositeID); err != nil {
		log.Printf("[bot] delete demand in chat %d: %v", chatID, err)
		b.sendError(ctx, chatID, threadID, fmt.Sprintf("failed to delete demand: %v", err))
		return
	}
	b.sendText(ctx, chatID, threadID, "Demand erased")
	if err := b.api.DeleteMessage(ctx, chatID, q.Message.MessageID); err != nil {
		log.Printf("[bot] delete keyboard message in chat %d: %v", chatID, err)
	}
}

// parseCommand extracts the command name and arguments from a message
// text, stripping any @BotName suffix on the command.
func parseCommand(text string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), fields[1:], true
}

// parseAlertArgs validates "/setalert TOKEN INTERVAL [PERCENT]" args.
// The token is uppercased; a missing percentage means 0 (any change).
func parseAlertArgs(args []string) (token, interval string, percentage int16, err error) {
	if len(args) < 2 || len(args) > 3 {
		return "", "", 0, fmt.Errorf("usage: /setalert TOKEN INTERVAL PERCENTAGE, see /help for the interval list")
	}
	token = strings.ToUpper(args[0])
	interval = args[1]
	if len(args) == 3 {
		v, perr := strconv.ParseInt(args[2], 10, 16)
		if perr != nil {
			return "", "", 0, fmt.Errorf("percentage must be an int")
		}
		percentage = int16(v)
	}
	return token, interval, percentage, nil
}

func (b *Bot) sendText(ctx context.Context, chatID int64, threadID int, text string) {
	err := b.api.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:   chatID,
		ThreadID: threadID,
		Text:     text,
	})
	if err != nil {
		log.Printf("[bot] send to chat %d: %v", chatID, err)
	}
}

func (b *Bot) sendError(ctx context.Context, chatID int64, threadID int, errMsg string) {
	b.sendText(ctx, chatID, threadID, "⚠️ Error: "+telegram.EscapeMarkdown(errMsg)+"⚠️")
}
