package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/service"
	"github.com/WessleyAI/routes-aggregator/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// memConn is a synchronous in-process bus.
type memConn struct {
	mu    sync.Mutex
	subs  map[string][]nats.MsgHandler
	queue string
	inbox int
}

func newMemConn() *memConn { return &memConn{subs: map[string][]nats.MsgHandler{}} }

func (c *memConn) PublishMsg(m *nats.Msg) error {
	c.mu.Lock()
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
	c.mu.Lock()
	c.queue = queue
	c.mu.Unlock()
	return c.Subscribe(subj, cb)
}

type fakeHandler struct {
	mu   sync.Mutex
	reqs []service.UpdateRequest
	fail map[string]bool
}

func (h *fakeHandler) HandleUpdate(_ context.Context, req service.UpdateRequest) service.UpdateReply {
	h.mu.Lock()
	h.reqs = append(h.reqs, req)
	h.mu.Unlock()
	if h.fail[req.AgentType] {
		return service.UpdateReply{JobID: req.JobID, Status: service.StatusFailed, Error: "application internal error"}
	}
	return service.UpdateReply{
		JobID:  req.JobID,
		Status: service.StatusDone,
		Result: &service.UpdateResult{AgentType: req.AgentType, Rebuilt: req.Rebuild},
	}
}

func TestServeUpdates(t *testing.T) {
	nc := newMemConn()
	h := &fakeHandler{}
	sub, err := serveUpdates(nc, h, time.Minute, quiet)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Subject != service.UpdateSubject || nc.queue != queueGroup {
		t.Fatalf("subscribed to %q in queue %q", sub.Subject, nc.queue)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := natsutil.Request[service.UpdateRequest, service.UpdateReply](ctx, nc, service.UpdateSubject,
		service.UpdateRequest{JobID: "job-7", AgentType: "uz", Rebuild: true})
	if err != nil {
		t.Fatal(err)
	}
	if reply.JobID != "job-7" || reply.Status != service.StatusDone || reply.Result == nil || !reply.Result.Rebuilt {
		t.Errorf("reply = %+v", reply)
	}
}

func TestServeUpdatesAssignsJobID(t *testing.T) {
	nc := newMemConn()
	h := &fakeHandler{}
	if _, err := serveUpdates(nc, h, 0, quiet); err != nil {
		t.Fatal(err)
	}
	reply, err := natsutil.Request[service.UpdateRequest, service.UpdateReply](context.Background(), nc, service.UpdateSubject,
		service.UpdateRequest{AgentType: "uz"})
	if err != nil {
		t.Fatal(err)
	}
	if reply.JobID == "" || len(h.reqs) != 1 || h.reqs[0].JobID != reply.JobID {
		t.Errorf("reply = %+v, handled = %+v", reply, h.reqs)
	}
}

func TestWarmUp(t *testing.T) {
	h := &fakeHandler{fail: map[string]bool{"pkp": true}}
	warmUp(context.Background(), h, []string{"pkp", "uz"}, quiet)

	if len(h.reqs) != 2 {
		t.Fatalf("handled %d requests", len(h.reqs))
	}
	for _, req := range h.reqs {
		if req.Rebuild {
			t.Errorf("warm start must load snapshots, got rebuild for %s", req.AgentType)
		}
		if req.JobID != "warm-"+req.AgentType {
			t.Errorf("job id = %q", req.JobID)
		}
	}
}
