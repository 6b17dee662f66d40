package config

// ChannelKind is the closed set of notification channels the builder knows.
type ChannelKind int

const (
	ChannelDiscord ChannelKind = iota
	ChannelSlack
	ChannelEmail
	ChannelKafka
)

// ChannelKinds lists every kind in chain order.
var ChannelKinds = []ChannelKind{ChannelDiscord, ChannelSlack, ChannelEmail, ChannelKafka}

func (k ChannelKind) String() string {
	switch k {
	case ChannelDiscord:
		return "discord"
	case ChannelSlack:
		return "slack"
	case ChannelEmail:
		return "email"
	case ChannelKafka:
		return "kafka"
	default:
		return "unknown"
	}
}

// Configured reports whether kind is enabled and has a destination.
func (c *Config) Configured(kind ChannelKind) bool {
	switch kind {
	case ChannelDiscord:
		return c.Discord.Enabled && c.Discord.WebhookURL != ""
	case ChannelSlack:
		return c.Slack.Enabled && c.Slack.WebhookURL != ""
	case ChannelEmail:
		return c.Email.Enabled && c.Email.ToAddress != ""
	case ChannelKafka:
		return c.Kafka.Enabled && c.Kafka.Brokers != "" && c.Kafka.Topic != ""
	default:
		return false
	}
}

// EnabledChannels returns the configured kinds in chain order.
func (c *Config) EnabledChannels() []ChannelKind {
	var kinds []ChannelKind
	for _, k := range ChannelKinds {
		if c.Configured(k) {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
