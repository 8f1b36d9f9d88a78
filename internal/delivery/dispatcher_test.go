package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/d60-Lab/fedigraph/internal/model"
)

type captureSubmitter struct{ jobs []Job }

func (c *captureSubmitter) Enqueue(j Job) bool {
	c.jobs = append(c.jobs, j)
	return true
}

type stubResolver struct {
	actor *model.Actor
	err   error
	delay time.Duration
}

func (s *stubResolver) Resolve(ctx context.Context, handle string) (*model.Actor, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.actor, s.err
}

func remoteActor(id, domain, inbox, shared string) *model.Actor {
	return &model.Actor{
		ID: id, Username: "u" + id, Domain: domain,
		Protocol: model.ProtocolActivityPub,
		InboxURI: inbox, SharedInboxURI: shared,
	}
}

func TestDistributeCollapsesSharedInbox(t *testing.T) {
	sub := &captureSubmitter{}
	d := NewDispatcher(sub)
	from := &model.Actor{ID: "local", Username: "alice", Protocol: model.ProtocolLocal}

	shared := "https://remote.example/inbox"
	recipients := []*model.Actor{
		remoteActor("r1", "remote.example", "https://remote.example/users/r1/inbox", shared),
		remoteActor("r2", "remote.example", "https://remote.example/users/r2/inbox", shared),
	}

	d.Distribute(context.Background(), Activity{ID: "a1"}, from, recipients, Options{PreferSharedInbox: true})
	assert.Len(t, sub.jobs, 1)
	assert.Equal(t, shared, sub.jobs[0].Inbox)
	assert.Equal(t, "remote.example", sub.jobs[0].Domain)

	// without the shared-inbox preference, one job per personal inbox
	sub.jobs = nil
	d.Distribute(context.Background(), Activity{ID: "a1"}, from, recipients, Options{})
	assert.Len(t, sub.jobs, 2)
}

func TestDistributeSkipsLocalAndNil(t *testing.T) {
	sub := &captureSubmitter{}
	d := NewDispatcher(sub)
	from := &model.Actor{ID: "local", Username: "alice"}

	recipients := []*model.Actor{
		nil,
		{ID: "l1", Username: "bob", Protocol: model.ProtocolLocal},
		remoteActor("r1", "remote.example", "https://remote.example/users/r1/inbox", ""),
	}
	d.Distribute(context.Background(), Activity{ID: "a1"}, from, recipients, Options{})
	assert.Len(t, sub.jobs, 1)
	assert.Equal(t, "https://remote.example/users/r1/inbox", sub.jobs[0].Inbox)
}

func TestDistributeEnqueuesUnknownInboxByHandle(t *testing.T) {
	sub := &captureSubmitter{}
	d := NewDispatcher(sub)
	from := &model.Actor{ID: "local", Username: "alice"}
	pending := &model.Actor{ID: "r1", Username: "carol", Domain: "far.example", Protocol: model.ProtocolActivityPub}

	d.Distribute(context.Background(), Activity{ID: "a1"}, from,
		[]*model.Actor{pending, pending}, Options{PreferSharedInbox: true})

	// one job, by handle, with no inbox: discovery is a worker concern
	assert.Len(t, sub.jobs, 1)
	assert.Empty(t, sub.jobs[0].Inbox)
	assert.Equal(t, "carol@far.example", sub.jobs[0].Acct)
	assert.Equal(t, "far.example", sub.jobs[0].Domain)
	assert.True(t, sub.jobs[0].PreferShared)
}

func TestDistributeNeverBlocksOnResolution(t *testing.T) {
	sub := &captureSubmitter{}
	d := NewDispatcher(sub)
	from := &model.Actor{ID: "local", Username: "alice"}
	pending := &model.Actor{ID: "r1", Username: "carol", Domain: "slow.example", Protocol: model.ProtocolActivityPub}

	start := time.Now()
	d.Distribute(context.Background(), Activity{ID: "a1"}, from, []*model.Actor{pending}, Options{})
	assert.Less(t, time.Since(start), 50*time.Millisecond,
		"enqueue-only: the caller must not wait on discovery")
	assert.Len(t, sub.jobs, 1)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "remote.example", domainOf("https://remote.example:8443/inbox", "fallback"))
	assert.Equal(t, "fallback", domainOf("://bad", "fallback"))
}
