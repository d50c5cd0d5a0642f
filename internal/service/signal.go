package service

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/totegamma/agentdesk"
)

const StatusChannel = "agentdesk:agent-status"

type SignalService struct {
	rdb *redis.Client
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb: redisClient,
	}
}

func (s *SignalService) Publish(ctx context.Context, channel string, event any) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = s.rdb.Publish(ctx, channel, jsonstr).Err()
	if err != nil {
		return errors.Wrap(err, "failed to publish to "+channel)
	}

	return nil
}

// PublishStatus announces a status change on StatusChannel.
func (s *SignalService) PublishStatus(ctx context.Context, event agentdesk.AgentEvent) error {
	return s.Publish(ctx, StatusChannel, event)
}

// Subscribe returns status events until ctx is done.
func (s *SignalService) Subscribe(ctx context.Context) (<-chan agentdesk.AgentEvent, error) {
	if s == nil || s.rdb == nil {
		return nil, errors.New("signal service has no redis client")
	}

	pubsub := s.rdb.Subscribe(ctx, StatusChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, errors.Wrap(err, "failed to subscribe")
	}

	out := make(chan agentdesk.AgentEvent)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event agentdesk.AgentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
