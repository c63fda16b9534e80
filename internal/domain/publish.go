package domain

import "fmt"

// PublishScope selects which connections a publish request targets.
type PublishScope string

const (
	ScopeUser PublishScope = "user"
	ScopeAll  PublishScope = "all"
	ScopeRole PublishScope = "role"
)

// PublishRequest is an upstream instruction to fan out one message.
type PublishRequest struct {
	Scope   PublishScope `json:"scope"`
	Target  string       `json:"target,omitempty"`
	Message Message      `json:"message"`
}

func (r PublishRequest) Validate() error {
	switch r.Scope {
	case ScopeUser, ScopeRole:
		if r.Target == "" {
			return fmt.Errorf("%w for scope %q", ErrMissingTarget, r.Scope)
		}
	case ScopeAll:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidScope, r.Scope)
	}
	return r.Message.Validate()
}

// PublishResult reports what a publish reached. Delivered is set when at least
// one connection received the message; Count is the number of connections.
type PublishResult struct {
	Delivered bool `json:"delivered"`
	Count     int  `json:"count"`
}

// Publisher fans out publish requests to live connections.
type Publisher interface {
	Dispatch(req PublishRequest) (PublishResult, error)
}

// UserConnections is the per-user entry of a Stats snapshot.
type UserConnections struct {
	UserID          string `json:"userId"`
	ConnectionCount int    `json:"connectionCount"`
}

// Stats is a point-in-time snapshot of the registry.
type Stats struct {
	DistinctUserCount    int               `json:"distinctUserCount"`
	TotalConnectionCount int               `json:"totalConnectionCount"`
	PerUser              []UserConnections `json:"perUser"`
}

// StatsReader exposes registry snapshots.
type StatsReader interface {
	Stats() Stats
}
