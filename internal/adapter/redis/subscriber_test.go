package redis

import (
	"context"
	"sync"
	"testing"

	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/adapter/metrics"
	"github.com/cr4zyCute/igcfms-capstone-project-sub003/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu       sync.Mutex
	requests []domain.PublishRequest
	err      error
	notify   chan domain.PublishRequest
}

func (p *recordingPublisher) Dispatch(req domain.PublishRequest) (domain.PublishResult, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.notify != nil {
		p.notify <- req
	}
	return domain.PublishResult{Delivered: true, Count: 1}, p.err
}

func (p *recordingPublisher) dispatched() []domain.PublishRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PublishRequest(nil), p.requests...)
}

func newUnitSubscriber(t *testing.T) (*Subscriber, *recordingPublisher, *metrics.PublishMetrics) {
	t.Helper()
	pub := &recordingPublisher{}
	m := metrics.NewPublishMetrics(prometheus.NewRegistry())
	return NewSubscriber(nil, "igcfms:live:publish", pub, m), pub, m
}

func TestHandlePayload_ValidCommands(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		scope   domain.PublishScope
		target  string
	}{
		{"user", `{"scope":"user","target":"42","message":{"type":"notification","title":"Cheque issued"}}`, domain.ScopeUser, "42"},
		{"role", `{"scope":"role","target":"admin","message":{"type":"fund_updated"}}`, domain.ScopeRole, "admin"},
		{"all", `{"scope":"all","message":{"type":"maintenance"}}`, domain.ScopeAll, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pub, m := newUnitSubscriber(t)

			s.HandlePayload(context.Background(), tt.payload)

			requests := pub.dispatched()
			require.Len(t, requests, 1)
			assert.Equal(t, tt.scope, requests[0].Scope)
			assert.Equal(t, tt.target, requests[0].Target)
			assert.NotEmpty(t, requests[0].Message.Type)
			assert.InDelta(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues("redis", string(tt.scope))), 0.001)
		})
	}
}

func TestHandlePayload_KeepsMessageFields(t *testing.T) {
	s, pub, _ := newUnitSubscriber(t)

	s.HandlePayload(context.Background(), `{"scope":"user","target":"7","message":{"type":"transaction_created","amount":250.5,"fund":"GF"}}`)

	msg := pub.dispatched()[0].Message
	assert.Equal(t, "transaction_created", msg.Type)
	assert.InDelta(t, 250.5, msg.Data["amount"], 0.001)
	assert.Equal(t, "GF", msg.Data["fund"])
}

func TestHandlePayload_InvalidCommandsDropped(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `hello`},
		{"unknown scope", `{"scope":"team","target":"x","message":{"type":"a"}}`},
		{"user without target", `{"scope":"user","message":{"type":"a"}}`},
		{"role without target", `{"scope":"role","message":{"type":"a"}}`},
		{"missing message", `{"scope":"all"}`},
		{"message not an object", `{"scope":"all","message":"hi"}`},
		{"message without type", `{"scope":"all","message":{"amount":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pub, m := newUnitSubscriber(t)

			s.HandlePayload(context.Background(), tt.payload)

			assert.Empty(t, pub.dispatched())
			assert.InDelta(t, 1.0, testutil.ToFloat64(m.InvalidCommands.WithLabelValues("redis")), 0.001)
		})
	}
}

func TestHandlePayload_DispatchErrorIsAbsorbed(t *testing.T) {
	s, pub, _ := newUnitSubscriber(t)
	pub.err = domain.ErrRegistryStopped

	assert.NotPanics(t, func() {
		s.HandlePayload(context.Background(), `{"scope":"all","message":{"type":"a"}}`)
	})
	assert.Len(t, pub.dispatched(), 1)
}
