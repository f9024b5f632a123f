package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/isey69/sale-forces-crm-sub000"
)

var tracer = otel.Tracer("crm/signal")

// SignalService fans change events out over redis pub/sub, one channel per
// customer.
type SignalService struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewSignalService(redisClient *redis.Client, logger *zap.Logger) *SignalService {
	return &SignalService{
		rdb:    redisClient,
		logger: logger.Named("signal"),
	}
}

func (s *SignalService) Publish(ctx context.Context, event crm.Event) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()

	channel := crm.CustomerChannel(event.CustomerID)
	span.SetAttributes(attribute.String("channel", channel), attribute.String("event.type", event.Type))

	jsonstr, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		err = errors.Wrapf(err, "publish %s", channel)
		span.RecordError(err)
		return err
	}

	return nil
}

// Realtime forwards events of the customers most recently sent on input to
// output. Each message on input replaces the previous subscription set.
// It returns when ctx is done or input is closed.
func (s *SignalService) Realtime(ctx context.Context, input <-chan []string, output chan<- crm.Event) {
	pubsub := s.rdb.Subscribe(ctx)
	defer pubsub.Close()

	messages := pubsub.Channel()
	var current []string

	for {
		select {
		case <-ctx.Done():
			return
		case customers, ok := <-input:
			if !ok {
				return
			}
			if len(current) > 0 {
				if err := pubsub.Unsubscribe(ctx, current...); err != nil {
					s.logger.Warn("failed to unsubscribe", zap.Strings("channels", current), zap.Error(err))
				}
			}
			current = current[:0]
			for _, id := range customers {
				if id == "" {
					continue
				}
				current = append(current, crm.CustomerChannel(id))
			}
			if len(current) == 0 {
				continue
			}
			if err := pubsub.Subscribe(ctx, current...); err != nil {
				s.logger.Error("failed to subscribe", zap.Strings("channels", current), zap.Error(err))
				return
			}
			s.logger.Debug("realtime subscribe", zap.Strings("channels", current))
		case msg, ok := <-messages:
			if !ok {
				return
			}
			event, err := decodeEvent(msg.Channel, msg.Payload)
			if err != nil {
				s.logger.Warn("dropping malformed event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case output <- event:
			case <-ctx.Done():
				return
			}
		}
	}
}

// decodeEvent parses a message received on a customer channel. The channel
// names the customer; an event claiming another customer is rejected.
func decodeEvent(channel, payload string) (crm.Event, error) {
	customerID, ok := crm.ParseCustomerChannel(channel)
	if !ok {
		return crm.Event{}, errors.Errorf("not a customer channel: %q", channel)
	}

	var event crm.Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return crm.Event{}, errors.Wrap(err, "decode event")
	}
	if event.CustomerID == "" {
		event.CustomerID = customerID
	}
	if event.CustomerID != customerID {
		return crm.Event{}, errors.Errorf("event for %s on channel of %s", event.CustomerID, customerID)
	}
	return event, nil
}
