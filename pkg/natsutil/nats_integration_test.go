//go:build integration

package natsutil

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// Run with a local server: NATS_URL=nats://localhost:4222 go test -tags integration ./pkg/natsutil

func dialNATS(t *testing.T) *nats.Conn {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("natsutil-integration"))
	if err != nil {
		t.Skipf("no nats server at %s: %v", url, err)
	}
	t.Cleanup(nc.Close)
	return nc
}

type updateJob struct {
	JobID     string `json:"job_id"`
	AgentType string `json:"agent_type"`
}

type updateDone struct {
	JobID  string `json:"job_id"`
	Worker int    `json:"worker"`
}

func TestIntegrationPublishSubscribe(t *testing.T) {
	nc := dialNATS(t)
	subject := "integ.routes.events." + nats.NewInbox()[7:]

	got := make(chan updateJob, 1)
	sub, err := Subscribe(nc, subject, func(_ context.Context, j updateJob) { got <- j })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if err := Publish(context.Background(), nc, subject, updateJob{JobID: "j1", AgentType: "uz"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case j := <-got:
		if j.JobID != "j1" || j.AgentType != "uz" {
			t.Fatalf("got %+v", j)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

// Two workers in one queue group share the jobs; each job is answered once.
func TestIntegrationServeQueueGroup(t *testing.T) {
	nc := dialNATS(t)
	subject := "integ.routes.update." + nats.NewInbox()[7:]

	var handled [2]atomic.Int32
	for i := range handled {
		worker := i
		sub, err := Serve(nc, subject, "updaters", 5*time.Second, nil, func(_ context.Context, j updateJob) updateDone {
			handled[worker].Add(1)
			return updateDone{JobID: j.JobID, Worker: worker}
		})
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
		defer sub.Unsubscribe()
	}

	const jobs = 20
	for i := 0; i < jobs; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		done, err := Request[updateJob, updateDone](ctx, nc, subject, updateJob{JobID: "job", AgentType: "uz"})
		cancel()
		if err != nil {
			t.Fatalf("Request %d: %v", i, err)
		}
		if done.JobID != "job" {
			t.Fatalf("reply %d = %+v", i, done)
		}
	}
	if total := handled[0].Load() + handled[1].Load(); total != jobs {
		t.Fatalf("handled %d jobs, want %d", total, jobs)
	}
}

func TestIntegrationRequestNoResponders(t *testing.T) {
	nc := dialNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Request[updateJob, updateDone](ctx, nc, "integ.routes.nobody", updateJob{JobID: "x"})
	if err == nil {
		t.Fatal("expected an error without responders")
	}
}
