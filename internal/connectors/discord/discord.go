// Package discord implements the Discord-shaped connector over the
// gateway websocket.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/connectors"
)

// Connector receives Discord gateway events and feeds authorised
// channels into the message bus.
type Connector struct {
	bus *bus.MessageBus

	mu        sync.RWMutex
	cfg       connectors.Config
	session   *discordgo.Session
	botUserID string
	running   bool
	active    string
	lastError string
	latency   time.Duration
}

func New(cfg connectors.Config, msgBus *bus.MessageBus) *Connector {
	return &Connector{bus: msgBus, cfg: cfg}
}

func (c *Connector) ID() string { return "discord" }

// Start opens the gateway session and resolves the bot identity.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.RLock()
	token := c.cfg.Token
	c.mu.RUnlock()
	if token == "" {
		return fmt.Errorf("discord: no bot token configured")
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.AddHandler(c.handleMessage)

	start := time.Now()
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	user, err := session.User("@me")
	if err != nil {
		session.Close()
		return fmt.Errorf("discord: fetch bot identity: %w", err)
	}

	c.mu.Lock()
	c.session = session
	c.botUserID = user.ID
	c.running = true
	c.latency = time.Since(start)
	c.lastError = ""
	c.mu.Unlock()

	slog.Info("discord connector started", "username", user.Username)
	return nil
}

func (c *Connector) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	c.mu.RLock()
	self := c.botUserID
	c.mu.RUnlock()
	if m.Author == nil || m.Author.ID == self || m.Author.Bot || m.Content == "" {
		return
	}

	c.mu.Lock()
	c.active = m.ChannelID
	c.mu.Unlock()

	c.bus.PublishInbound(bus.InboundMessage{
		Connector: c.ID(),
		SenderID:  m.Author.ID,
		TargetID:  m.ChannelID,
		Content:   m.Content,
	})
}

func (c *Connector) Stop() error {
	c.mu.Lock()
	session := c.session
	c.running = false
	c.mu.Unlock()
	if session == nil {
		return nil
	}
	slog.Info("discord connector stopped")
	return session.Close()
}

// Send delivers one pre-split chunk to a channel.
func (c *Connector) Send(ctx context.Context, msg bus.OutboundMessage) error {
	c.mu.RLock()
	session, running := c.session, c.running
	c.mu.RUnlock()
	if !running || session == nil {
		return fmt.Errorf("discord: not running")
	}

	start := time.Now()
	_, err := session.ChannelMessageSend(msg.TargetID, msg.Content)
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
			return fmt.Errorf("discord: unknown setting %q", key)
		}
	}
	return nil
}
