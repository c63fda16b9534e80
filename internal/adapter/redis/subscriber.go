package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/correlation"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const commandSource = "redis"

// reconnectPolicy retries until the context ends; an open breaker is waited
// out rather than hammered.
var reconnectPolicy = retry.Policy{
	InitialBackoff:   500 * time.Millisecond,
	MaxBackoff:       30 * time.Second,
	RateLimitBackoff: breakerOpenTimeout,
}

// Subscriber turns messages on a Pub/Sub channel into registry publishes.
//
// Payload: {"scope":"user|all|role","target":"...","message":{"type":"...",...}}
type Subscriber struct {
	rdb       *goredis.Client
	channel   string
	publisher domain.Publisher
	metrics   *metrics.PublishMetrics
	policy    retry.Policy
}

func NewSubscriber(rdb *goredis.Client, channel string, publisher domain.Publisher, m *metrics.PublishMetrics) *Subscriber {
	policy := reconnectPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Redis subscribe failed, retrying", "channel", channel, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return &Subscriber{rdb: rdb, channel: channel, publisher: publisher, metrics: m, policy: policy}
}

// Ping backs the Redis readiness check.
func (s *Subscriber) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Run consumes the channel until ctx is cancelled, resubscribing whenever the
// subscription is lost. It returns an error only when Redis rejects the
// credentials or ACLs, which retrying cannot fix.
func (s *Subscriber) Run(ctx context.Context) error {
	slog.Info("Redis subscriber starting", "channel", s.channel)
	defer s.setActive(false)

	for {
		var sub *goredis.PubSub
		err := retry.DoVoid(ctx, s.policy, ClassifyError, func() error {
			var err error
			sub, err = s.subscribe(ctx)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Redis subscriber stopped", "channel", s.channel)
				return nil
			}
			return fmt.Errorf("subscribe to %s: %w", s.channel, err)
		}

		s.setActive(true)
		err = s.consume(ctx, sub)
		s.setActive(false)
		_ = sub.Close()

		if ctx.Err() != nil {
			slog.Info("Redis subscriber stopped", "channel", s.channel)
			return nil
		}
		slog.Warn("Redis subscription lost, reconnecting", "channel", s.channel, "error", err)
	}
}

func (s *Subscriber) subscribe(ctx context.Context) (*goredis.PubSub, error) {
	sub := s.rdb.Subscribe(ctx, s.channel)
	// The first reply confirms the subscription; anything else means it failed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	slog.Info("Subscribed to publish channel", "channel", s.channel)
	return sub, nil
}

func (s *Subscriber) consume(ctx context.Context, sub *goredis.PubSub) error {
	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		s.HandlePayload(ctx, msg.Payload)
	}
}

// HandlePayload decodes one command and dispatches it. Invalid commands are
// logged and dropped.
func (s *Subscriber) HandlePayload(ctx context.Context, payload string) {
	ctx = correlation.WithID(ctx, correlation.NewID())

	req, err := decodeCommand(payload)
	if err != nil {
		slog.WarnContext(ctx, "Dropping invalid publish command", "channel", s.channel, "error", err)
		if s.metrics != nil {
			s.metrics.InvalidCommands.WithLabelValues(commandSource).Inc()
		}
		return
	}

	if s.metrics != nil {
		s.metrics.Requests.WithLabelValues(commandSource, string(req.Scope)).Inc()
	}

	result, err := s.publisher.Dispatch(req)
	if err != nil {
		slog.WarnContext(ctx, "Publish command not delivered", "scope", req.Scope, "target", req.Target, "error", err)
		return
	}
	slog.DebugContext(ctx, "Publish command delivered",
		"scope", req.Scope, "target", req.Target, "type", req.Message.Type, "delivered", result.Count)
}

func decodeCommand(payload string) (domain.PublishRequest, error) {
	var req domain.PublishRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return domain.PublishRequest{}, fmt.Errorf("decode command: %w", err)
	}
	if err := req.Validate(); err != nil {
		return domain.PublishRequest{}, err
	}
	return req, nil
}

func (s *Subscriber) setActive(active bool) {
	if s.metrics == nil {
		return
	}
	if active {
		s.metrics.SubscriberActive.Set(1)
	} else {
		s.metrics.SubscriberActive.Set(0)
	}
}
