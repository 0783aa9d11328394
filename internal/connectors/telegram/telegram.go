// Package telegram implements the Telegram-shaped connector over the Bot
// API with long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/connectors"
)

const pollTimeoutSeconds = 30

// Connector long-polls the Telegram Bot API and feeds authorised chats
// into the message bus.
type Connector struct {
	bus *bus.MessageBus

	mu        sync.RWMutex
	cfg       connectors.Config
	bot       *telego.Bot
	running   bool
	active    string
	lastError string
	latency   time.Duration

	// Telegram allows ~30 messages/second bot-wide.
	limiter *rate.Limiter

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

func New(cfg connectors.Config, msgBus *bus.MessageBus) *Connector {
	return &Connector{
		bus:     msgBus,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(30), 5),
	}
}

func (c *Connector) ID() string { return "telegram" }

// Start connects the bot and launches the polling goroutine.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.RLock()
	token := c.cfg.Token
	c.mu.RUnlock()
	if token == "" {
		return fmt.Errorf("telegram: no bot token configured")
	}

	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, true))
	if err != nil {
		return fmt.Errorf("telegram: create bot: %w", err)
	}

	pollCtx, cancel := context.WithCancel(ctx)
	start := time.Now()
	updates, err := bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        pollTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram: start polling: %w", err)
	}

	c.mu.Lock()
	c.bot = bot
	c.running = true
	c.latency = time.Since(start)
	c.lastError = ""
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})
	c.mu.Unlock()

	go c.poll(pollCtx, updates)
	slog.Info("telegram connector started")
	return nil
}

func (c *Connector) poll(ctx context.Context, updates <-chan telego.Update) {
	defer close(c.pollDone)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg := update.Message
			if msg == nil || msg.Text == "" {
				continue
			}
			chatID := strconv.FormatInt(msg.Chat.ID, 10)
			c.mu.Lock()
			c.active = chatID
			c.mu.Unlock()

			c.bus.PublishInbound(bus.InboundMessage{
				Connector: c.ID(),
				SenderID:  senderID(msg),
				TargetID:  chatID,
				Content:   msg.Text,
			})
		}
	}
}

// Stop tears down polling and waits for the poll goroutine to exit.
func (c *Connector) Stop() error {
	c.mu.Lock()
	cancel, done := c.pollCancel, c.pollDone
	c.running = false
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	slog.Info("telegram connector stopped")
	return nil
}

// Send delivers one pre-split chunk to a chat.
func (c *Connector) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	bot, running := c.bot, c.running
	c.mu.RUnlock()
	if !running || bot == nil {
		return fmt.Errorf("telegram: not running")
	}

	chatID, err := strconv.ParseInt(msg.TargetID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", msg.TargetID, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	_, err = bot.SendMessage(ctx, tu.Message(tu.ID(chatID), msg.Content))
	c.mu.Lock()
	c.latency = time.Since(start)
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
	c.mu.Unlock()
	return err
}

func (c *Connector) Snapshot() connectors.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return connectors.Snapshot{
		ID:                c.ID(),
		Running:           c.running,
		PrimaryTarget:     c.cfg.PrimaryTarget,
		ActiveTarget:      c.active,
		AuthorizedTargets: append([]string(nil), c.cfg.AuthorizedTargets...),
		Latency:           c.latency,
		LastError:         c.lastError,
	}
}

// Configure applies runtime settings. A token change takes effect on the
// next Start.
func (c *Connector) Configure(settings map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, value := range settings {
		switch key {
		case "token":
			c.cfg.Token = value
		case "primaryTarget":
			c.cfg.PrimaryTarget = value
		case "addTarget":
			c.cfg.AuthorizedTargets = append(c.cfg.AuthorizedTargets, value)
		default:
			return fmt.Errorf("telegram: unknown setting %q", key)
		}
	}
	return nil
}

func senderID(msg *telego.Message) string {
	if msg.From != nil {
		return strconv.FormatInt(msg.From.ID, 10)
	}
	return ""
}
