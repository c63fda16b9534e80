package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// CommandPublisher is the producer side of the publish channel: the REST
// backend (or the publish CLI) uses it to hand events to every gateway
// instance subscribed to the channel.
type CommandPublisher struct {
	rdb     *goredis.Client
	channel string
}

func NewCommandPublisher(rdb *goredis.Client, channel string) *CommandPublisher {
	return &CommandPublisher{rdb: rdb, channel: channel}
}

// Publish validates req and publishes it. It returns the number of
// subscribers that received the command, not the number of connections.
func (p *CommandPublisher) Publish(ctx context.Context, req domain.PublishRequest) (int64, error) {
	if err := req.Validate(); err != nil {
		return 0, fmt.Errorf("invalid publish command: %w", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal publish command: %w", err)
	}

	receivers, err := p.rdb.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", p.channel, err)
	}
	return receivers, nil
}
