package connectors

import (
	"context"
	"time"

	"github.com/slashbot/slashbot/internal/bus"
)

// Config is the per-connector settings block.
type Config struct {
	Token string `json:"token"`
	// AuthorizedTargets whitelists chat/channel ids; empty denies all.
	AuthorizedTargets []string `json:"authorizedTargets"`
	// PrimaryTarget receives notify messages with no explicit target.
	PrimaryTarget string `json:"primaryTarget,omitempty"`
}

// Authorized reports whether a target may drive the agent.
func (c Config) Authorized(target string) bool {
	for _, t := range c.AuthorizedTargets {
		if t == target {
			return true
		}
	}
	return false
}

// Snapshot is the connector status published to the indicator sidebar.
type Snapshot struct {
	ID                string        `json:"id"`
	Running           bool          `json:"running"`
	PrimaryTarget     string        `json:"primaryTarget,omitempty"`
	ActiveTarget      string        `json:"activeTarget,omitempty"`
	AuthorizedTargets []string      `json:"authorizedTargets,omitempty"`
	Latency           time.Duration `json:"latency,omitempty"`
	LastError         string        `json:"lastError,omitempty"`
}

// Connector is one external chat platform runtime. Start returns once the
// platform connection is established; inbound messages flow to the bus.
type Connector interface {
	ID() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	Snapshot() Snapshot
	Configure(settings map[string]string) error
}
