package domain

import "github.com/google/uuid"

// ConnID is the runtime handle of a registered connection.
type ConnID = uuid.UUID

// ConnState is the lifecycle state of a connection as seen by the registry.
type ConnState int32

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Identity is what a client declared about itself when it connected.
// The token is carried but never verified here.
type Identity struct {
	UserID   string
	Token    string
	Role     string
	Endpoint string
}

// HasRole reports whether the identity carries exactly the given role.
// An identity without a role never matches, and neither does an empty filter.
func (i Identity) HasRole(role string) bool {
	return role != "" && i.Role == role
}

// Handshake holds the parameters parsed from a connection request.
type Handshake struct {
	UserID   string
	Token    string
	Role     string
	Endpoint string
}

// Validate checks that the required identity fields are present.
func (h Handshake) Validate() error {
	if h.UserID == "" || h.Token == "" {
		return ErrMissingIdentity
	}
	return nil
}

// Identity converts a validated handshake into an Identity.
func (h Handshake) Identity() Identity {
	endpoint := h.Endpoint
	if endpoint == "" {
		endpoint = "/"
	}
	return Identity{
		UserID:   h.UserID,
		Token:    h.Token,
		Role:     h.Role,
		Endpoint: endpoint,
	}
}
