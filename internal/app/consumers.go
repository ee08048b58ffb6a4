package app

import (
	"fmt"
	"log/slog"

	"github.com/nsqio/go-nsq"

	"paperlib/internal/config"
)

// Consumers is the set of running NSQ consumers.
type Consumers struct {
	consumers []*nsq.Consumer
}

// Subscriptions maps each pipeline topic to its handler.
func Subscriptions(stage, chunk nsq.Handler) map[string]nsq.Handler {
	return map[string]nsq.Handler{
		config.TopicStage: stage,
		config.TopicChunk: chunk,
	}
}

// StartConsumers subscribes the stage and chunk handlers on the backend
// channel and connects them to lookupd.
func StartConsumers(lookupd string, stage, chunk nsq.Handler) (*Consumers, error) {
	c := &Consumers{}
	for topic, h := range Subscriptions(stage, chunk) {
		consumer, err := nsq.NewConsumer(topic, config.ChannelBackend, nsq.NewConfig())
		if err != nil {
			c.Stop()
			return nil, fmt.Errorf("nsq consumer %s: %w", topic, err)
		}
		consumer.AddHandler(h)
		if err := consumer.ConnectToNSQLookupd(lookupd); err != nil {
			consumer.Stop()
			c.Stop()
			return nil, fmt.Errorf("nsq lookupd %s: %w", topic, err)
		}
		slog.Info("NSQ consumer connected", "topic", topic, "channel", config.ChannelBackend)
		c.consumers = append(c.consumers, consumer)
	}
	return c, nil
}

func (c *Consumers) Stop() {
	for _, consumer := range c.consumers {
		consumer.Stop()
		<-consumer.StopChan
	}
}
