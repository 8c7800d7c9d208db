package relay

import (
	"fmt"
	"os"

	"relaybot/internal/config"
	"relaybot/internal/domain"

	"gopkg.in/yaml.v3"
)

// routesFile is the YAML shape of an external routes file.
type routesFile struct {
	Routes []config.Route `yaml:"routes"`
}

// LoadRoutes reads forwarding routes from a YAML file.
func LoadRoutes(path string) ([]config.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read routes file %s: %w", path, err)
	}

	var rf routesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("cannot parse routes file %s: %w", path, err)
	}

	for i, r := range rf.Routes {
		if r.From == "" || r.To == "" || r.ToChat == "" {
			return nil, fmt.Errorf("routes[%d]: from, to and toChat are required", i)
		}
	}
	return rf.Routes, nil
}

// Match returns the outbound messages a single inbound message fans out to.
// A route matches when its source channel matches and its fromChat filter,
// if set, matches the originating chat.
func Match(routes []config.Route, msg domain.InboundMessage) []domain.OutboundMessage {
	var out []domain.OutboundMessage
	for _, r := range routes {
		if r.From != msg.Channel {
			continue
		}
		if r.FromChat != "" && r.FromChat != msg.ChatID {
			continue
		}
		out = append(out, domain.OutboundMessage{
			Channel:  r.To,
			ChatID:   r.ToChat,
			Content:  fmt.Sprintf("[%s %s] %s", msg.Channel, msg.SenderID, msg.Content),
			MediaURL: msg.MediaURL,
		})
	}
	return out
}
