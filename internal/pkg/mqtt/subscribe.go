package mqtt

import (
	"context"
	"fmt"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/anicoll/arduino-bridge/internal/pkg/model"
	"github.com/anicoll/arduino-bridge/internal/pkg/senml"
)

type subscription struct {
	name string
	fn   func(model.Value)
}

// thingTopic carries the values a thing publishes.
func thingTopic(thingID string) string {
	return fmt.Sprintf("/a/t/%s/e/o", thingID)
}

// SubscribeProperty calls fn with every value published for the named
// property of a thing. The returned func removes the subscription.
func (s *service) SubscribeProperty(ctx context.Context, thingID, name string, fn func(model.Value)) (func(), error) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	_, topicActive := s.subs[thingID]
	if !topicActive {
		s.subs[thingID] = map[uint64]subscription{}
	}
	s.subs[thingID][id] = subscription{name: name, fn: fn}
	s.mu.Unlock()

	cancel := func() { s.unsubscribe(thingID, id) }
	if topicActive || !s.client.IsConnected() {
		// picked up by onConnect once connected
		return cancel, nil
	}
	if err := s.subscribeTopic(ctx, thingID); err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}

func (s *service) subscribeTopic(ctx context.Context, thingID string) error {
	topic := thingTopic(thingID)
	if err := wait(ctx, s.client.Subscribe(topic, 0, s.handleMessage(thingID)), ackTimeout); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	s.logger.Debug("subscribed", zap.String("topic", topic))
	return nil
}

func (s *service) unsubscribe(thingID string, id uint64) {
	s.mu.Lock()
	subs, ok := s.subs[thingID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(subs, id)
	last := len(subs) == 0
	if last {
		delete(s.subs, thingID)
	}
	s.mu.Unlock()

	if !last || !s.client.IsConnected() {
		return
	}
	topic := thingTopic(thingID)
	if err := wait(context.Background(), s.client.Unsubscribe(topic), ackTimeout); err != nil {
		s.logger.Warn("failed to unsubscribe", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *service) handleMessage(thingID string) paho_mqtt.MessageHandler {
	return func(_ paho_mqtt.Client, msg paho_mqtt.Message) {
		records, err := senml.Decode(msg.Payload())
		if err != nil {
			s.logger.Warn("dropping undecodable property message", zap.String("topic", msg.Topic()), zap.Error(err))
			return
		}
		values := senml.Values(records)

		s.mu.Lock()
		targets := []subscription{}
		for _, sub := range s.subs[thingID] {
			if _, ok := values[sub.name]; ok {
				targets = append(targets, sub)
			}
		}
		s.mu.Unlock()

		for _, sub := range targets {
			sub.fn(values[sub.name])
		}
	}
}
