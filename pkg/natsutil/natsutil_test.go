package natsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testMsg struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// memConn is a synchronous in-process bus.
type memConn struct {
	mu        sync.Mutex
	subs      map[string][]nats.MsgHandler
	published []*nats.Msg
	inbox     int
}

func newMemConn() *memConn { return &memConn{subs: map[string][]nats.MsgHandler{}} }

func (c *memConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
	c.published = append(c.published, m)
	handlers := append([]nats.MsgHandler(nil), c.subs[m.Subject]...)
	c.mu.Unlock()
	for _, h := range handlers {
		h(m)
	}
	return nil
}

func (c *memConn) RequestMsgWithContext(ctx context.Context, m *nats.Msg) (*nats.Msg, error) {
	c.mu.Lock()
	c.inbox++
	reply := fmt.Sprintf("_INBOX.%d", c.inbox)
	got := make(chan *nats.Msg, 1)
	c.subs[reply] = []nats.MsgHandler{func(r *nats.Msg) { got <- r }}
	c.mu.Unlock()

	m.Reply = reply
	if err := c.PublishMsg(m); err != nil {
		return nil, err
	}
	select {
	case r := <-got:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *memConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[subj] = append(c.subs[subj], cb)
	return &nats.Subscription{Subject: subj}, nil
}

func (c *memConn) QueueSubscribe(subj, queue string, cb nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.Subscribe(subj, cb)
	if sub != nil {
		sub.Queue = queue
	}
	return sub, err
}

func TestNatsHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	carrier.Set("traceparent", "00-abc-def-01")
	if got := carrier.Get("traceparent"); got != "00-abc-def-01" {
		t.Fatalf("expected traceparent, got %q", got)
	}

	keys := carrier.Keys()
	if len(keys) != 1 {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestNatsHeaderCarrierNilHeader(t *testing.T) {
	msg := &nats.Msg{}
	carrier := (*natsHeaderCarrier)(msg)

	if got := carrier.Get("missing"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
	if keys := carrier.Keys(); keys != nil {
		t.Fatalf("expected nil keys, got %v", keys)
	}
}

func TestPublishSubscribe(t *testing.T) {
	nc := newMemConn()
	var got []testMsg
	if _, err := Subscribe(nc, "t.pub", func(_ context.Context, m testMsg) { got = append(got, m) }); err != nil {
		t.Fatal(err)
	}

	if err := Publish(context.Background(), nc, "t.pub", testMsg{Name: "a", Value: 1}); err != nil {
		t.Fatal(err)
	}
	// Malformed payloads never reach the handler.
	nc.PublishMsg(&nats.Msg{Subject: "t.pub", Data: []byte("{invalid json")})

	if len(got) != 1 || got[0].Name != "a" || got[0].Value != 1 {
		t.Fatalf("got %+v", got)
	}
}

func TestPublishPropagatesTrace(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	nc := newMemConn()
	var seen trace.SpanContext
	Subscribe(nc, "t.trace", func(ctx context.Context, _ testMsg) { seen = trace.SpanContextFromContext(ctx) })
	if err := Publish(ctx, nc, "t.trace", testMsg{}); err != nil {
		t.Fatal(err)
	}
	if nc.published[0].Header.Get("traceparent") == "" {
		t.Fatal("traceparent header not injected")
	}
	if seen.TraceID() != traceID {
		t.Fatalf("trace id = %s, want %s", seen.TraceID(), traceID)
	}
}

func TestServeAndRequest(t *testing.T) {
	nc := newMemConn()
	sub, err := Serve(nc, "t.double", "workers", time.Second, quiet, func(ctx context.Context, m testMsg) testMsg {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("handler context has no deadline")
		}
		return testMsg{Name: m.Name + "!", Value: m.Value * 2}
	})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Queue != "workers" {
		t.Errorf("queue = %q", sub.Queue)
	}

	resp, err := Request[testMsg, testMsg](context.Background(), nc, "t.double", testMsg{Name: "x", Value: 21})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Name != "x!" || resp.Value != 42 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestServeDropsMalformedAndUnaddressed(t *testing.T) {
	nc := newMemConn()
	calls := 0
	Serve(nc, "t.drop", "q", 0, quiet, func(context.Context, testMsg) testMsg {
		calls++
		return testMsg{}
	})

	nc.PublishMsg(&nats.Msg{Subject: "t.drop", Reply: "_INBOX.x", Data: []byte("nope")})
	Publish(context.Background(), nc, "t.drop", testMsg{Name: "no reply"})

	if calls != 0 {
		t.Fatalf("handler called %d times", calls)
	}
}

func TestRequestTimesOut(t *testing.T) {
	nc := newMemConn()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := Request[testMsg, testMsg](ctx, nc, "t.nobody", testMsg{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestRequestBadReply(t *testing.T) {
	nc := newMemConn()
	nc.Subscribe("t.bad", func(m *nats.Msg) {
		nc.PublishMsg(&nats.Msg{Subject: m.Reply, Data: []byte("not json")})
	})
	if _, err := Request[testMsg, testMsg](context.Background(), nc, "t.bad", testMsg{}); err == nil {
		t.Fatal("expected decode error")
	}
}
