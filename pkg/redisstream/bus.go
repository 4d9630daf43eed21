package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Bus is the publisher/subscriber pair update signals travel over.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string

	closers []func() error
}

// BuildBus returns a Redis Streams bus when settings.Enabled is set and an
// in-process GoChannel bus otherwise.
func BuildBus(s Settings) (*Bus, error) {
	s = s.withDefaults()
	logger := NewWatermillLogger(log.Logger)

	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return &Bus{
			Publisher:  ch,
			Subscriber: ch,
			Topic:      s.Topic,
			closers:    []func() error{ch.Close},
		}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	return BuildRedisBus(client, s)
}

// BuildRedisBus builds a Redis Streams bus on an existing client. The client
// is closed with the bus.
func BuildRedisBus(client redis.UniversalClient, s Settings) (*Bus, error) {
	s = s.withDefaults()
	logger := NewWatermillLogger(log.Logger)
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: subscriber")
	}

	return &Bus{
		Publisher:  pub,
		Subscriber: sub,
		Topic:      s.Topic,
		closers:    []func() error{sub.Close, pub.Close, client.Close},
	}, nil
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrap(err, "redisstream: create consumer group")
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
