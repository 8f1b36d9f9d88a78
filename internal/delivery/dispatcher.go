package delivery

import (
	"context"
	"net/url"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// submitter is the queue contract the dispatcher needs from the pool.
type submitter interface {
	Enqueue(Job) bool
}

// AcctResolver resolves a handle to a canonical actor when a recipient's
// inbox is not yet known locally.
type AcctResolver interface {
	Resolve(ctx context.Context, handle string) (*model.Actor, error)
}

// Options control one Distribute call.
type Options struct {
	// PreferSharedInbox collapses recipients on the same server into one
	// shared-inbox job. Only safe for broadcast-style (public) activities.
	PreferSharedInbox bool
}

// Dispatcher converts a logical "distribute activity to recipients" request
// into deduplicated per-inbox jobs. It only enqueues; all network I/O,
// including resolution of recipients with no known inbox, happens inside
// pool workers.
type Dispatcher struct {
	pool submitter
}

func NewDispatcher(pool submitter) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Distribute enqueues one job per distinct inbox. Recipients without a known
// inbox are enqueued by handle and resolved worker-side. Failures degrade to
// log lines; distribution problems never propagate to the caller.
func (d *Dispatcher) Distribute(_ context.Context, act Activity, from *model.Actor, recipients []*model.Actor, opts Options) {
	seen := make(map[string]struct{}, len(recipients))
	for _, rcpt := range recipients {
		if rcpt == nil || rcpt.IsLocal() {
			continue
		}
		inbox := rcpt.DeliveryInbox(opts.PreferSharedInbox)
		if inbox == "" {
			key := "acct:" + rcpt.Acct()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			d.pool.Enqueue(Job{
				Activity:     act,
				FromID:       from.ID,
				Acct:         rcpt.Acct(),
				Domain:       rcpt.Domain,
				PreferShared: opts.PreferSharedInbox,
			})
			continue
		}
		if _, dup := seen[inbox]; dup {
			continue
		}
		seen[inbox] = struct{}{}

		d.pool.Enqueue(Job{
			Activity: act,
			FromID:   from.ID,
			Protocol: rcpt.Protocol,
			Inbox:    inbox,
			Domain:   domainOf(inbox, rcpt.Domain),
		})
	}
}

// domainOf extracts the destination domain from the inbox URL, falling back
// to the actor's own domain. Breaker state is keyed by this value.
func domainOf(inbox, fallback string) string {
	if u, err := url.Parse(inbox); err == nil && u.Host != "" {
		return u.Hostname()
	}
	return fallback
}
