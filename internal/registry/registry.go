package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	commandCapacity = 256

	// CloseReasonUnauthorized is sent with 1008 when a handshake lacks identity fields.
	CloseReasonUnauthorized = "Unauthorized: Missing userId or token"
	// CloseReasonShutdown is sent with 1001 to every live connection on Stop.
	CloseReasonShutdown = "Server shutting down"

	establishedMessage = "Connected to WebSocket server"
)

type client struct {
	id       domain.ConnID
	identity domain.Identity
	writer   *clientWriter
}

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type acceptCmd struct {
	baseRegistryCmd
	id           domain.ConnID
	connection   *websocket.Conn
	identity     domain.Identity
	replyChannel chan struct{}
}

type closeCmd struct {
	baseRegistryCmd
	id domain.ConnID
}

type inboundCmd struct {
	baseRegistryCmd
	id      domain.ConnID
	payload []byte
}

type publishCmd struct {
	baseRegistryCmd
	scope        domain.PublishScope
	target       string
	message      domain.Message
	replyChannel chan int
}

type statsCmd struct {
	baseRegistryCmd
	replyChannel chan domain.Stats
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry tracks open connections by user and by connection handle and fans
// messages out to them. A single goroutine owns both indices; every public
// method is a command sent to it.
type Registry struct {
	cmdCh       chan registryCmd
	clock       clockwork.Clock
	metrics     *metrics.RegistryMetrics
	byUser      map[string]map[domain.ConnID]*client
	identities  map[domain.ConnID]*client
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// New creates a registry and starts its command loop.
// m may be nil when metrics are not collected.
func New(clock clockwork.Clock, m *metrics.RegistryMetrics) *Registry {
	r := &Registry{
		cmdCh:       make(chan registryCmd, commandCapacity),
		clock:       clock,
		metrics:     m,
		byUser:      make(map[string]map[domain.ConnID]*client),
		identities:  make(map[domain.ConnID]*client),
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go r.run()
	return r
}

// Accept validates the handshake and registers the connection. A handshake
// without userId or token is closed with 1008 and never registered.
func (r *Registry) Accept(conn *websocket.Conn, hs domain.Handshake) (domain.ConnID, error) {
	if err := hs.Validate(); err != nil {
		r.reject(conn, hs)
		return domain.ConnID{}, err
	}

	id := uuid.New()
	replyCh := make(chan struct{}, 1)
	cmd := acceptCmd{id: id, connection: conn, identity: hs.Identity(), replyChannel: replyCh}
	if !r.send(cmd) {
		_ = conn.Close()
		return domain.ConnID{}, domain.ErrRegistryStopped
	}

	if _, err := awaitReply(r, replyCh); err != nil {
		_ = conn.Close()
		return domain.ConnID{}, fmt.Errorf("accept %s: %w", hs.UserID, err)
	}
	return id, nil
}

// HandleInboundMessage processes a text payload received on a registered connection.
func (r *Registry) HandleInboundMessage(id domain.ConnID, payload []byte) {
	r.send(inboundCmd{id: id, payload: payload})
}

// Close removes the connection from the registry. Closing an unknown or
// already closed connection is a no-op.
func (r *Registry) Close(id domain.ConnID) {
	r.send(closeCmd{id: id})
}

// PublishToUser delivers msg to every open connection of userID.
// Returns false if the user had no open connection at call time.
func (r *Registry) PublishToUser(userID string, msg domain.Message) bool {
	count, _ := r.publish(domain.ScopeUser, userID, msg)
	return count > 0
}

// PublishToAll delivers msg to every open connection and returns how many were open.
func (r *Registry) PublishToAll(msg domain.Message) int {
	count, _ := r.publish(domain.ScopeAll, "", msg)
	return count
}

// PublishToRole delivers msg to every open connection whose role equals role exactly.
func (r *Registry) PublishToRole(role string, msg domain.Message) int {
	count, _ := r.publish(domain.ScopeRole, role, msg)
	return count
}

// Dispatch routes an upstream publish request to the matching publish operation.
// Unlike the Publish methods it reports a stopped or unresponsive registry.
func (r *Registry) Dispatch(req domain.PublishRequest) (domain.PublishResult, error) {
	if err := req.Validate(); err != nil {
		return domain.PublishResult{}, err
	}

	count, err := r.publish(req.Scope, req.Target, req.Message)
	if err != nil {
		return domain.PublishResult{}, err
	}
	return domain.PublishResult{Delivered: count > 0, Count: count}, nil
}

// Stats returns a point-in-time snapshot of the registry.
// Returns an empty snapshot if the registry is stopped or unresponsive.
func (r *Registry) Stats() domain.Stats {
	replyCh := make(chan domain.Stats, 1)
	if !r.send(statsCmd{replyChannel: replyCh}) {
		return domain.Stats{PerUser: []domain.UserConnections{}}
	}

	stats, err := awaitReply(r, replyCh)
	if err != nil {
		slog.Warn("Stats unavailable", "error", err)
		return domain.Stats{PerUser: []domain.UserConnections{}}
	}
	return stats
}

// Ping reports whether the command loop is responsive.
func (r *Registry) Ping() error {
	replyCh := make(chan domain.Stats, 1)
	if !r.send(statsCmd{replyChannel: replyCh}) {
		return domain.ErrRegistryStopped
	}
	_, err := awaitReply(r, replyCh)
	return err
}

// Stop closes every live connection with 1001 and shuts the registry down.
// Blocks until the command loop has exited or the stop timeout is reached.
// Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if !r.send(stopCmd{}) {
			return
		}

		timeout := r.clock.NewTimer(r.stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Registry stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Registry stop timeout exceeded", "timeout", r.stopTimeout)
		}
	})
}

func (r *Registry) send(cmd registryCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}

	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func awaitReply[T any](r *Registry, replyCh <-chan T) (T, error) {
	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-replyCh:
		return v, nil
	case <-r.done:
		return zero, domain.ErrRegistryStopped
	case <-timer.Chan():
		return zero, fmt.Errorf("registry command timed out after %v", commandTimeout)
	}
}

func (r *Registry) publish(scope domain.PublishScope, target string, msg domain.Message) (int, error) {
	replyCh := make(chan int, 1)
	if !r.send(publishCmd{scope: scope, target: target, message: msg, replyChannel: replyCh}) {
		return 0, domain.ErrRegistryStopped
	}

	count, err := awaitReply(r, replyCh)
	if err != nil {
		slog.Warn("Publish failed", "scope", scope, "target", target, "error", err)
		return 0, err
	}
	return count, nil
}

func (r *Registry) reject(conn *websocket.Conn, hs domain.Handshake) {
	slog.Info("Rejecting connection: missing identity",
		"endpoint", hs.Endpoint,
		"has_user_id", hs.UserID != "",
		"has_token", hs.Token != "",
	)
	if r.metrics != nil {
		r.metrics.HandshakeRejections.Inc()
	}

	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, CloseReasonUnauthorized)
	_ = conn.WriteControl(websocket.CloseMessage, closeMsg, r.clock.Now().Add(writeDeadline))
	_ = conn.Close()
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Registry panic recovered", "panic", rec)
			if r.metrics != nil {
				r.metrics.Panics.Inc()
			}
			r.closeAllClients(websocket.CloseInternalServerErr, "registry failure")
		}
	}()

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case acceptCmd:
			r.handleAccept(c)
		case closeCmd:
			r.handleClose(c.id)
		case inboundCmd:
			r.handleInbound(c)
		case publishCmd:
			c.replyChannel <- r.handlePublish(c)
		case statsCmd:
			c.replyChannel <- r.snapshot()
		case stopCmd:
			r.handleStop()
			return
		default:
			slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (r *Registry) handleAccept(c acceptCmd) {
	cl := &client{
		id:       c.id,
		identity: c.identity,
		writer:   newClientWriter(c.connection, r.clock, r.metrics),
	}

	conns, exists := r.byUser[cl.identity.UserID]
	if !exists {
		conns = make(map[domain.ConnID]*client)
		r.byUser[cl.identity.UserID] = conns
	}
	conns[cl.id] = cl
	r.identities[cl.id] = cl

	ack := domain.ConnectionEstablished{Message: establishedMessage, UserID: cl.identity.UserID}
	r.deliver(cl, ack)

	r.updateGauges()
	slog.Info("Client registered",
		"user_id", cl.identity.UserID,
		"role", cl.identity.Role,
		"endpoint", cl.identity.Endpoint,
		"user_connections", len(conns),
		"distinct_users", len(r.byUser),
		"total_connections", len(r.identities),
	)
	c.replyChannel <- struct{}{}
}

func (r *Registry) handleClose(id domain.ConnID) {
	cl, exists := r.identities[id]
	if !exists {
		return
	}

	cl.writer.stop()
	r.remove(cl)

	slog.Debug("Client unregistered",
		"user_id", cl.identity.UserID,
		"distinct_users", len(r.byUser),
		"total_connections", len(r.identities),
	)
}

// remove drops the client from both indices and deletes its user entry when empty.
func (r *Registry) remove(cl *client) {
	delete(r.identities, cl.id)

	if conns, ok := r.byUser[cl.identity.UserID]; ok {
		delete(conns, cl.id)
		if len(conns) == 0 {
			delete(r.byUser, cl.identity.UserID)
			slog.Info("Last connection closed for user", "user_id", cl.identity.UserID)
		}
	}

	r.updateGauges()
}

func (r *Registry) handleInbound(c inboundCmd) {
	cl, exists := r.identities[c.id]
	if !exists {
		return
	}
	cl.writer.recordActivity()

	msg, err := domain.ParseClientMessage(c.payload)
	if err != nil {
		slog.Warn("Ignoring malformed message", "user_id", cl.identity.UserID, "error", err)
		if r.metrics != nil {
			r.metrics.MalformedMessages.Inc()
		}
		return
	}

	switch m := msg.(type) {
	case domain.Ping:
		r.deliver(cl, domain.Pong{})
	case domain.UnknownMessage:
		slog.Debug("Ignoring client message", "user_id", cl.identity.UserID, "type", m.Type)
	}
}

func (r *Registry) handlePublish(c publishCmd) int {
	frame, err := c.message.Frame(r.clock.Now())
	if err != nil {
		slog.Error("Failed to encode published message", "type", c.message.Type, "error", err)
		return 0
	}

	var targets []*client
	switch c.scope {
	case domain.ScopeUser:
		for _, cl := range r.byUser[c.target] {
			targets = append(targets, cl)
		}
	case domain.ScopeAll:
		for _, cl := range r.identities {
			targets = append(targets, cl)
		}
	case domain.ScopeRole:
		for _, cl := range r.identities {
			if cl.identity.HasRole(c.target) {
				targets = append(targets, cl)
			}
		}
	}

	// Every open target counts as delivered; a full buffer drops the frame
	// and evicts the client.
	delivered := 0
	var slow []*client
	for _, cl := range targets {
		if !cl.writer.isOpen() {
			continue
		}
		delivered++
		if !cl.writer.enqueue(frame) {
			slow = append(slow, cl)
		}
	}

	for _, cl := range slow {
		r.evict(cl)
	}

	if r.metrics != nil && delivered > 0 {
		r.metrics.MessagesDelivered.WithLabelValues(string(c.scope)).Add(float64(delivered))
	}
	slog.Debug("Message published", "scope", c.scope, "target", c.target, "type", c.message.Type, "delivered", delivered)
	return delivered
}

// deliver encodes a server message for a single client.
func (r *Registry) deliver(cl *client, msg domain.ServerMessage) {
	frame, err := msg.Frame(r.clock.Now())
	if err != nil {
		slog.Error("Failed to encode message", "type", msg.MessageType(), "error", err)
		return
	}
	if !cl.writer.enqueue(frame) && cl.writer.isOpen() {
		r.evict(cl)
	}
}

func (r *Registry) evict(cl *client) {
	if _, exists := r.identities[cl.id]; !exists {
		return
	}
	slog.Warn("Disconnecting slow client", "user_id", cl.identity.UserID)
	if r.metrics != nil {
		r.metrics.SlowClientsEvicted.Inc()
	}
	cl.writer.stop()
	r.remove(cl)
}

func (r *Registry) snapshot() domain.Stats {
	stats := domain.Stats{
		DistinctUserCount:    len(r.byUser),
		TotalConnectionCount: len(r.identities),
		PerUser:              make([]domain.UserConnections, 0, len(r.byUser)),
	}
	for userID, conns := range r.byUser {
		stats.PerUser = append(stats.PerUser, domain.UserConnections{UserID: userID, ConnectionCount: len(conns)})
	}
	slices.SortFunc(stats.PerUser, func(a, b domain.UserConnections) int {
		return strings.Compare(a.UserID, b.UserID)
	})
	return stats
}

func (r *Registry) updateGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.ActiveUsers.Set(float64(len(r.byUser)))
	r.metrics.ActiveConnections.Set(float64(len(r.identities)))
}

func (r *Registry) handleStop() {
	users, total := len(r.byUser), len(r.identities)
	slog.Info("Registry shutting down", "users", users, "total_connections", total)
	r.closeAllClients(websocket.CloseGoingAway, CloseReasonShutdown)
	slog.Info("Registry shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given code and reason.
// Used during panic recovery and graceful shutdown.
func (r *Registry) closeAllClients(code int, reason string) {
	for id, cl := range r.identities {
		cl.writer.stopGraceful(code, reason)
		delete(r.identities, id)
	}
	clear(r.byUser)
	r.updateGauges()
}

var _ domain.Publisher = (*Registry)(nil)
var _ domain.StatsReader = (*Registry)(nil)
