// Package telegram delivers notifications and serves chat commands via the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/marketwatch/internal/logger"
	"github.com/rewired-gh/marketwatch/internal/models"
	"github.com/rewired-gh/marketwatch/internal/notify"
)

// Commands is the command surface exposed to the chat.
type Commands interface {
	ShowIndex(ctx context.Context, name string) (notify.Notification, error)
	ShowStock(ctx context.Context, codeOrName string) (notify.Notification, error)
	Watch(ctx context.Context, codeOrName string) (notify.Notification, error)
	Unwatch(ctx context.Context, codeOrName string) (notify.Notification, error)
	List(kind models.Kind) notify.Notification
	SetAlarm(ctx context.Context, codeOrName, price string) (notify.Notification, error)
	RemoveAlarm(ctx context.Context, codeOrName, price string) (notify.Notification, error)
	ListAlarms(ctx context.Context, codeOrName string) (notify.Notification, error)
	Recent(ctx context.Context, k int) (notify.Notification, error)
}

// Client handles Telegram notifications.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands.
// Only messages from the configured chat are served.
// It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, cmds Commands) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() || msg.Chat.ID != c.chatID {
					continue
				}
				text := dispatch(ctx, cmds, msg.Command(), msg.CommandArguments())
				if err := c.sendMarkdownV2(ctx, text); err != nil {
					logger.Error("Failed to reply to /%s: %v", msg.Command(), err)
				}
			}
		}
	}()
}

const helpText = `/index [name] : index card
/stock <code|name> : stock card
/watch <code|name> : add to watchlist
/unwatch <code|name> : remove from watchlist
/indices, /stocks : watched summaries
/alarm <code|name> <price> : set stock price alarm
/off <code|name> <price> : remove price alarm
/alarms [code|name] : list alarms
/recent [n] : recent notifications`

// dispatch runs one command and renders the reply as MarkdownV2.
func dispatch(ctx context.Context, cmds Commands, command, args string) string {
	fields := strings.Fields(args)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}

	var (
		n   notify.Notification
		err error
	)
	switch command {
	case "ping":
		return "Pong"
	case "help", "start":
		return escapeMarkdownV2(helpText)
	case "index":
		n, err = cmds.ShowIndex(ctx, args)
	case "stock":
		n, err = cmds.ShowStock(ctx, args)
	case "watch":
		n, err = cmds.Watch(ctx, args)
	case "unwatch":
		n, err = cmds.Unwatch(ctx, args)
	case "indices":
		n = cmds.List(models.KindIndex)
	case "stocks":
		n = cmds.List(models.KindStock)
	case "alarm", "off":
		if len(fields) < 2 {
			return escapeMarkdownV2(fmt.Sprintf("usage: /%s <code|name> <price>", command))
		}
		// Names may contain spaces; the price is always the last field.
		name := strings.Join(fields[:len(fields)-1], " ")
		if command == "alarm" {
			n, err = cmds.SetAlarm(ctx, name, fields[len(fields)-1])
		} else {
			n, err = cmds.RemoveAlarm(ctx, name, fields[len(fields)-1])
		}
	case "alarms":
		n, err = cmds.ListAlarms(ctx, args)
	case "recent":
		k, _ := strconv.Atoi(arg(0))
		n, err = cmds.Recent(ctx, k)
	default:
		return escapeMarkdownV2("Unknown command. Try /help")
	}

	if err != nil {
		return fmt.Sprintf("⚠️ `%s`", escapeMarkdownV2(err.Error()))
	}
	return formatMessage(n)
}

// Notify sends a notification, implementing notify.Sink.
func (c *Client) Notify(ctx context.Context, n notify.Notification) error {
	if err := c.sendMarkdownV2(ctx, formatMessage(n)); err != nil {
		return fmt.Errorf("%w: %w", models.ErrDelivery, err)
	}
	return nil
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %d attempt(s): %w", i+1, lastErr)
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

var kindEmoji = map[notify.Kind]string{
	notify.KindState:  "🔔",
	notify.KindRate:   "📊",
	notify.KindVolume: "🔊",
	notify.KindAlarm:  "⏰",
	notify.KindSystem: "⚙️",
}

var colorEmoji = map[notify.Color]string{
	notify.Positive: "🔺",
	notify.Negative: "🔻",
}

// formatMessage renders a notification as a Telegram MarkdownV2 message.
func formatMessage(n notify.Notification) string {
	var b strings.Builder

	if e, ok := kindEmoji[n.Kind]; ok {
		b.WriteString(e)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "*%s*", escapeMarkdownV2(n.Title))
	if e, ok := colorEmoji[n.Color]; ok {
		b.WriteByte(' ')
		b.WriteString(e)
	}
	b.WriteByte('\n')

	for _, line := range n.Lines {
		b.WriteString(escapeMarkdownV2(line))
		b.WriteByte('\n')
	}

	if n.Footer != "" {
		fmt.Fprintf(&b, "_%s_\n", escapeMarkdownV2(n.Footer))
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
