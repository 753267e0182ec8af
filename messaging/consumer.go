package messaging

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// StopHandler applies a device stop update.
type StopHandler interface {
	HandleStopUpdate(ctx context.Context, env *Envelope, msg StopUpdate) error
}

// Subscriber receives raw payloads from a topic.
type Subscriber interface {
	Subscribe(topic string, handler func(payload []byte)) error
}

// Consumer decodes inbound device messages and routes them to the handler.
type Consumer struct {
	sub     Subscriber
	topic   string
	handler StopHandler
	log     zerolog.Logger
}

func NewConsumer(sub Subscriber, topic string, handler StopHandler, log zerolog.Logger) *Consumer {
	return &Consumer{sub: sub, topic: topic, handler: handler, log: log}
}

// Start subscribes to the stop topic.
func (c *Consumer) Start() error {
	c.log.Info().Str("topic", c.topic).Msg("consumer subscribing")
	return c.sub.Subscribe(c.topic, c.HandleMessage)
}

// HandleMessage processes one raw message. Malformed messages are logged and dropped.
func (c *Consumer) HandleMessage(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("consumer: decode")
		return
	}

	switch p := env.Payload.(type) {
	case StopUpdate:
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := c.handler.HandleStopUpdate(ctx, env, p); err != nil {
			c.log.Error().Err(err).
				Str("msg_id", env.MsgID).
				Str("src", env.Src).
				Int64("dispatch_id", p.DispatchID).
				Int64("stop_id", p.StopID).
				Msg("consumer: stop update")
		}
	default:
		c.log.Debug().Str("msg_type", env.MsgType).Msg("consumer: ignoring message")
	}
}
