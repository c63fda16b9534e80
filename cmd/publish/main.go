// Command publish sends one live event through the Redis publish channel,
// e.g. from a cron job or while debugging a dashboard.
//
//	publish -scope role -target admin -type fund_updated -data '{"fundId":3}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/redis"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/logging"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/retry"
)

const defaultChannel = "igcfms:live:publish"

type options struct {
	redisURL string
	channel  string
	scope    string
	target   string
	msgType  string
	data     string
	timeout  time.Duration
	attempts int
}

func main() {
	var opts options
	flag.StringVar(&opts.redisURL, "redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
	flag.StringVar(&opts.channel, "channel", envOr("REDIS_PUBLISH_CHANNEL", defaultChannel), "Pub/Sub channel")
	flag.StringVar(&opts.scope, "scope", "all", "Target scope: user, role or all")
	flag.StringVar(&opts.target, "target", "", "User ID or role, depending on scope")
	flag.StringVar(&opts.msgType, "type", "", "Message type, e.g. notification")
	flag.StringVar(&opts.data, "data", "", "Additional message fields as a JSON object")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Second, "Overall Redis timeout")
	flag.IntVar(&opts.attempts, "attempts", 3, "Publish attempts before giving up")
	verbose := flag.Bool("verbose", false, "Verbose logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	if err := run(context.Background(), opts); err != nil {
		slog.Error("Publish failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.redisURL == "" {
		return errors.New("redis URL required (-redis or REDIS_URL env)")
	}
	if opts.attempts < 1 {
		return fmt.Errorf("-attempts must be at least 1, got %d", opts.attempts)
	}

	req, err := buildRequest(opts.scope, opts.target, opts.msgType, opts.data)
	if err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	rdb, err := redis.NewClient(ctx, opts.redisURL)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", sanitizeURL(opts.redisURL), err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Debug("Connected to Redis", "url", sanitizeURL(opts.redisURL))

	policy := retry.Policy{
		MaxAttempts:    opts.attempts,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Publish attempt failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
	publisher := redis.NewCommandPublisher(rdb, opts.channel)
	receivers, err := retry.Do(ctx, policy, redis.ClassifyError, func() (int64, error) {
		return publisher.Publish(ctx, req)
	})
	if err != nil {
		return err
	}

	slog.Info("Published", "channel", opts.channel, "scope", req.Scope, "target", req.Target, "type", req.Message.Type, "gateways", receivers)
	if receivers == 0 {
		slog.Warn("No gateway instance is subscribed to the channel")
	}
	return nil
}

func buildRequest(scope, target, msgType, data string) (domain.PublishRequest, error) {
	fields := map[string]any{}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &fields); err != nil {
			return domain.PublishRequest{}, fmt.Errorf("-data must be a JSON object: %w", err)
		}
		if fields == nil {
			return domain.PublishRequest{}, fmt.Errorf("-data must be a JSON object")
		}
	}
	delete(fields, "type")

	req := domain.PublishRequest{
		Scope:   domain.PublishScope(strings.ToLower(scope)),
		Target:  target,
		Message: domain.Message{Type: msgType, Data: fields},
	}
	if err := req.Validate(); err != nil {
		return domain.PublishRequest{}, err
	}
	return req, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sanitizeURL(url string) string {
	// Hide password in Redis URL for logging
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			credParts := strings.Split(parts[0], ":")
			if len(credParts) >= 2 {
				return credParts[0] + ":" + credParts[1] + ":***@" + parts[1]
			}
		}
	}
	return url
}
