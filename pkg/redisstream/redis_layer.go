package redisstream

import (
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/schema"
)

// Settings holds Redis Streams transport configuration for the update signal.
type Settings struct {
	Enabled  bool   `glazed:"redis-enabled" glazed.default:"false" glazed.help:"Publish update signals to Redis Streams"`
	Addr     string `glazed:"redis-addr" glazed.default:"localhost:6379" glazed.help:"Redis address host:port"`
	Topic    string `glazed:"redis-stream" glazed.default:"opendocs.update" glazed.help:"Redis stream carrying update signals"`
	Group    string `glazed:"redis-group" glazed.default:"opendocs-ui" glazed.help:"Redis consumer group"`
	Consumer string `glazed:"redis-consumer" glazed.default:"ui-1" glazed.help:"Redis consumer name"`
}

const (
	RedisSlug = "redis"

	DefaultAddr     = "localhost:6379"
	DefaultTopic    = "opendocs.update"
	DefaultGroup    = "opendocs-ui"
	DefaultConsumer = "ui-1"
)

// NewParameterLayer returns a section definition for Redis Streams settings.
func NewParameterLayer() (schema.Section, error) {
	return schema.NewSection(
		RedisSlug,
		"Redis configuration for Watermill Redis Streams",
		schema.WithFields(
			fields.New("redis-enabled", fields.TypeBool, fields.WithDefault(false), fields.WithHelp("Publish update signals to Redis Streams")),
			fields.New("redis-addr", fields.TypeString, fields.WithDefault(DefaultAddr), fields.WithHelp("Redis address host:port")),
			fields.New("redis-stream", fields.TypeString, fields.WithDefault(DefaultTopic), fields.WithHelp("Redis stream carrying update signals")),
			fields.New("redis-group", fields.TypeString, fields.WithDefault(DefaultGroup), fields.WithHelp("Redis consumer group")),
			fields.New("redis-consumer", fields.TypeString, fields.WithDefault(DefaultConsumer), fields.WithHelp("Redis consumer name")),
		),
	)
}

func DefaultSettings() Settings {
	return Settings{
		Addr:     DefaultAddr,
		Topic:    DefaultTopic,
		Group:    DefaultGroup,
		Consumer: DefaultConsumer,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Addr == "" {
		s.Addr = d.Addr
	}
	if s.Topic == "" {
		s.Topic = d.Topic
	}
	if s.Group == "" {
		s.Group = d.Group
	}
	if s.Consumer == "" {
		s.Consumer = d.Consumer
	}
	return s
}
