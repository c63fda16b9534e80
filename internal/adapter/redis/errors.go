package redis

import (
	"errors"
	"strings"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Server replies that mean the credentials or ACLs in REDIS_URL are wrong.
var permanentReplies = []string{"NOAUTH", "WRONGPASS", "NOPERM"}

// ClassifyError tells retry loops how to treat a failed Redis call. Auth and
// ACL rejections stop immediately, an open breaker waits out its timeout and
// everything else backs off normally.
func ClassifyError(err error) retry.Action {
	var reply goredis.Error
	if errors.As(err, &reply) {
		for _, prefix := range permanentReplies {
			if strings.HasPrefix(reply.Error(), prefix) {
				return retry.Stop
			}
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.After
	}
	return retry.Retry
}
