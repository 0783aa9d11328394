package protocol

// Per-platform outbound chunk limits. CLI output is never chunked.
const (
	TelegramMaxChunk = 4000
	DiscordMaxChunk  = 2000
)

// MaxChunkFor returns the outbound chunk limit for a connector id.
// Zero means unbounded.
func MaxChunkFor(connector string) int {
	switch connector {
	case "telegram":
		return TelegramMaxChunk
	case "discord":
		return DiscordMaxChunk
	default:
		return 0
	}
}
