// Package telegram is a minimal Telegram Bot API client covering the
// methods the alert bot needs: sending and deleting messages, long
// polling for updates, chat administrator lookup, command registration,
// and callback answering. It talks to the Bot API directly over
// net/http; no bot framework is involved.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// PollTimeout is the long-poll wait passed to getUpdates.
const PollTimeout = 25 * time.Second

// Config configures the client.
type Config struct {
	Token   string
	BaseURL string        // default: https://api.telegram.org
	Timeout time.Duration // per-request timeout for non-polling calls, default 10s
}

// Client is a Telegram Bot API client.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	poller  *http.Client // longer timeout for getUpdates long polling
}

// New creates a client for the given bot token.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram: empty bot token")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		poller:  &http.Client{Timeout: PollTimeout + 10*time.Second},
	}, nil
}

// BotID extracts the bot's own user id from the token (the numeric
// prefix before the colon).
func (c *Client) BotID() (int64, error) {
	prefix, _, ok := strings.Cut(c.token, ":")
	if !ok {
		return 0, fmt.Errorf("telegram: token has no ':' separator")
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: token prefix %q: %w", prefix, err)
	}
	return id, nil
}

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, httpClient *http.Client, method string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telegram: %s: read body: %w", method, err)
	}

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("telegram: %s: status %d, bad body: %w", method, resp.StatusCode, err)
	}
	if !env.OK {
		return fmt.Errorf("telegram: %s: api error %d: %s", method, env.ErrorCode, env.Description)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}

// SendMessage sends a MarkdownV2 message, optionally into a topic
// thread and optionally with an inline keyboard.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) error {
	if req.ParseMode == "" {
		req.ParseMode = "MarkdownV2"
	}
	return c.call(ctx, c.client, "sendMessage", req, nil)
}

// DeleteMessage removes a message the bot sent.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]any{"chat_id": chatID, "message_id": messageID}
	return c.call(ctx, c.client, "deleteMessage", payload, nil)
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         int(PollTimeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, c.poller, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// GetChatAdministrators returns the admin members of a chat.
func (c *Client) GetChatAdministrators(ctx context.Context, chatID int64) ([]ChatMember, error) {
	payload := map[string]any{"chat_id": chatID}
	var members []ChatMember
	if err := c.call(ctx, c.client, "getChatAdministrators", payload, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// SetMyCommands registers the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	payload := map[string]any{"commands": commands}
	return c.call(ctx, c.client, "setMyCommands", payload, nil)
}

// AnswerCallbackQuery acknowledges a callback button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, c.client, "answerCallbackQuery", payload, nil)
}

// EscapeMarkdown escapes special characters for Telegram MarkdownV2.
func EscapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
