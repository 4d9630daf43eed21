package redisstream

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/opendocs/pkg/opendocs"
)

// SignalPayload is the body of one update signal message.
type SignalPayload struct {
	Signal string `json:"signal"`
	User   string `json:"user"`
}

// PublisherSignal raises opendocs update signals as Watermill messages.
type PublisherSignal struct {
	publisher message.Publisher
	topic     string
}

var _ opendocs.UpdateSignal = &PublisherSignal{}

func NewPublisherSignal(publisher message.Publisher, topic string) (*PublisherSignal, error) {
	if publisher == nil {
		return nil, errors.New("redisstream: publisher is nil")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &PublisherSignal{publisher: publisher, topic: topic}, nil
}

func (s *PublisherSignal) Raise(ctx context.Context, userID string) error {
	b, err := json.Marshal(SignalPayload{Signal: opendocs.UpdateSignalName, User: userID})
	if err != nil {
		return errors.Wrap(err, "redisstream: encode signal")
	}
	msg := message.NewMessage(uuid.NewString(), b)
	msg.Metadata.Set("user", userID)
	if ctx != nil {
		msg.SetContext(ctx)
	}
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return errors.Wrap(err, "redisstream: publish signal")
	}
	log.Debug().Str("user", userID).Str("topic", s.topic).Msg("raised update signal")
	return nil
}

// Watch delivers every signal on the topic to fn until ctx is done or the
// subscription ends. Undecodable messages are acked and skipped.
func Watch(ctx context.Context, sub message.Subscriber, topic string, fn func(SignalPayload)) error {
	if sub == nil {
		return errors.New("redisstream: subscriber is nil")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	ch, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "redisstream: subscribe")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var p SignalPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				log.Warn().Err(err).Str("topic", topic).Msg("failed to decode update signal")
				msg.Ack()
				continue
			}
			fn(p)
			msg.Ack()
		}
	}
}
