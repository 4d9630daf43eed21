package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-go-golems/opendocs/pkg/redisstream"
)

type WatchCommand struct {
	*cmds.CommandDescription
}

func NewWatchCommand() (*WatchCommand, error) {
	redisSection, err := redisstream.NewParameterLayer()
	if err != nil {
		return nil, err
	}
	return &WatchCommand{
		CommandDescription: cmds.NewCommandDescription(
			"watch",
			cmds.WithShort("Print update signals as they are raised (requires --redis-enabled)"),
			cmds.WithSections(redisSection),
		),
	}, nil
}

func (c *WatchCommand) RunIntoWriter(ctx context.Context, parsedLayers *values.Values, w io.Writer) error {
	s := redisstream.Settings{}
	if err := parsedLayers.DecodeSectionInto(redisstream.RedisSlug, &s); err != nil {
		return errors.Wrap(err, "init redis settings")
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return watch(ctx, s, w)
}

var _ cmds.WriterCommand = &WatchCommand{}

func watch(ctx context.Context, s redisstream.Settings, w io.Writer) error {
	if !s.Enabled {
		return errors.New("watch needs the redis transport; pass --redis-enabled")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	if err := redisstream.EnsureGroupAtTail(ctx, client, topicOrDefault(s.Topic), groupOrDefault(s.Group)); err != nil {
		_ = client.Close()
		return err
	}
	bus, err := redisstream.BuildRedisBus(client, s)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close() }()

	return redisstream.Watch(ctx, bus.Subscriber, bus.Topic, func(p redisstream.SignalPayload) {
		_, _ = fmt.Fprintf(w, "%s user=%s\n", p.Signal, p.User)
	})
}

func topicOrDefault(topic string) string {
	if topic == "" {
		return redisstream.DefaultTopic
	}
	return topic
}

func groupOrDefault(group string) string {
	if group == "" {
		return redisstream.DefaultGroup
	}
	return group
}
