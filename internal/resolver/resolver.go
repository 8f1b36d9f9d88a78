package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/fedigraph/config"
	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
	"github.com/d60-Lab/fedigraph/pkg/logger"
)

// Resolution failure taxonomy. NotFound, UnsupportedProtocol and
// RedirectMismatch are permanent; ResolutionInProgress and
// UpstreamUnavailable are transient and caller-retryable.
var (
	ErrNotFound             = errors.New("resolver: actor not found")
	ErrUnsupportedProtocol  = errors.New("resolver: no supported federation protocol")
	ErrRedirectMismatch     = errors.New("resolver: confirmed handle mismatch after redirect")
	ErrResolutionInProgress = errors.New("resolver: resolution already in progress")
	ErrUpstreamUnavailable  = errors.New("resolver: upstream unavailable")
)

// apActorTypes are the JSON-LD actor types we accept as a resolvable identity.
var apActorTypes = map[string]bool{
	"Person":       true,
	"Service":      true,
	"Application":  true,
	"Group":        true,
	"Organization": true,
}

// Resolver maps user@domain handles to canonical Actor rows, caching in the
// directory and refreshing on staleness. First-time creation of a remote
// actor is serialized through a handle-scoped redis lock so two concurrent
// callers can never create two rows for the same identity.
type Resolver struct {
	actors      repository.ActorRepository
	lock        *Lock
	http        *resty.Client
	localDomain string
	staleness   time.Duration
	scheme      string
}

func New(actors repository.ActorRepository, rdb *redis.Client, cfg config.ResolverConfig, localDomain string) *Resolver {
	scheme := "https"
	if cfg.Insecure {
		scheme = "http"
	}
	client := resty.New().
		SetTimeout(cfg.HTTPTimeout).
		SetHeader("User-Agent", "fedigraph/1.0")
	staleness := cfg.Staleness
	if staleness <= 0 {
		staleness = 24 * time.Hour
	}
	return &Resolver{
		actors:      actors,
		lock:        NewLock(rdb, cfg.LockTTL),
		http:        client,
		localDomain: strings.ToLower(localDomain),
		staleness:   staleness,
		scheme:      scheme,
	}
}

// Resolve maps a handle ("user", "user@domain", leading @ tolerated) to an
// Actor. Local handles never trigger a remote fetch.
func (r *Resolver) Resolve(ctx context.Context, handle string) (*model.Actor, error) {
	username, domain := splitHandle(handle)
	if username == "" {
		return nil, fmt.Errorf("%w: empty handle", ErrNotFound)
	}
	if domain == "" || strings.EqualFold(domain, r.localDomain) {
		local, err := r.actors.FindByAcct(ctx, username, "")
		if err != nil {
			return nil, err
		}
		if local == nil {
			return nil, ErrNotFound
		}
		return local, nil
	}
	domain = strings.ToLower(domain)

	cached, err := r.actors.FindByAcct(ctx, username, domain)
	if err != nil {
		return nil, err
	}
	if cached != nil && !cached.Stale(r.staleness) {
		return cached, nil
	}
	return r.resolveRemote(ctx, username, domain, cached, 0)
}

// resolveRemote performs discovery, protocol selection, and the locked
// double-checked create/update. depth bounds redirect restarts to 1.
func (r *Resolver) resolveRemote(ctx context.Context, username, domain string, cached *model.Actor, depth int) (*model.Actor, error) {
	doc, err := r.fetchWebfinger(ctx, username, domain)
	if err != nil {
		// a stale cached actor beats a failed refresh
		if cached != nil && !errors.Is(err, ErrNotFound) {
			logger.Warn("resolver: refresh failed, serving stale actor",
				zap.String("acct", username+"@"+domain), zap.Error(err))
			return cached, nil
		}
		return nil, err
	}

	// The origin server may confirm a different canonical handle. Restart
	// once with the confirmed handle; a second mismatch is a hard failure.
	confUser, confDomain, ok := doc.acct()
	if !ok {
		return nil, fmt.Errorf("%w: malformed webfinger subject %q", ErrUnsupportedProtocol, doc.Subject)
	}
	if !strings.EqualFold(confUser, username) || !strings.EqualFold(confDomain, domain) {
		if depth >= 1 {
			return nil, ErrRedirectMismatch
		}
		confDomain = strings.ToLower(confDomain)
		redirected, err := r.actors.FindByAcct(ctx, confUser, confDomain)
		if err != nil {
			return nil, err
		}
		if redirected != nil && !redirected.Stale(r.staleness) {
			return redirected, nil
		}
		return r.resolveRemote(ctx, confUser, confDomain, redirected, depth+1)
	}

	proto, apHref, err := selectProtocol(doc)
	if err != nil {
		return nil, err
	}

	acct := username + "@" + domain
	token, ok, err := r.lock.Acquire(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if !ok {
		// another resolution is in flight; a stale cached row is still a
		// correct answer, otherwise fail fast and let the caller back off
		if cached != nil {
			return cached, nil
		}
		return nil, ErrResolutionInProgress
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = r.lock.Release(releaseCtx, acct, token)
	}()

	// double-checked: the lock winner may have already persisted the row
	existing, err := r.actors.FindByAcct(ctx, username, domain)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Stale(r.staleness) {
		return existing, nil
	}

	actor, err := r.fetchActor(ctx, doc, proto, apHref, username, domain)
	if err != nil {
		if existing != nil && !errors.Is(err, ErrUnsupportedProtocol) {
			return existing, nil
		}
		return nil, err
	}
	if existing != nil {
		actor.ID = existing.ID
	}
	if err := r.actors.Upsert(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

// fetchActor dereferences the full profile via the selected protocol.
func (r *Resolver) fetchActor(ctx context.Context, doc *jrd, proto, apHref, username, domain string) (*model.Actor, error) {
	switch proto {
	case model.ProtocolActivityPub:
		return r.fetchActivityPubActor(ctx, apHref, username, domain)
	case model.ProtocolOStatus:
		return ostatusActor(doc, username, domain)
	default:
		return nil, ErrUnsupportedProtocol
	}
}

func (r *Resolver) fetchWebfinger(ctx context.Context, username, domain string) (*jrd, error) {
	u := fmt.Sprintf("%s://%s/.well-known/webfinger?resource=%s",
		r.scheme, domain, url.QueryEscape("acct:"+username+"@"+domain))
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/jrd+json, application/json").
		Get(u)
	if err != nil {
		return nil, fmt.Errorf("%w: webfinger %s: %v", ErrUpstreamUnavailable, domain, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound, resp.StatusCode() == http.StatusGone:
		return nil, fmt.Errorf("%w: %s@%s", ErrNotFound, username, domain)
	case resp.IsError():
		return nil, fmt.Errorf("%w: webfinger %s returned %d", ErrUpstreamUnavailable, domain, resp.StatusCode())
	}
	var doc jrd
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed webfinger document: %v", ErrUnsupportedProtocol, err)
	}
	return &doc, nil
}

// selectProtocol picks ActivityPub when a self-describing JSON-LD profile
// link is present, falling back to OStatus when the legacy triple is intact.
func selectProtocol(doc *jrd) (proto, apHref string, err error) {
	if href := doc.activityPubHref(); href != "" {
		return model.ProtocolActivityPub, href, nil
	}
	if _, _, _, ok := doc.ostatusLinks(); ok {
		return model.ProtocolOStatus, "", nil
	}
	return "", "", ErrUnsupportedProtocol
}

// apActor is the subset of a JSON-LD actor document the directory needs.
type apActor struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Inbox             string `json:"inbox"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

func (r *Resolver) fetchActivityPubActor(ctx context.Context, href, username, domain string) (*model.Actor, error) {
	resp, err := r.http.R().
		SetContext(ctx).
		SetHeader("Accept", typeActivity).
		Get(href)
	if err != nil {
		return nil, fmt.Errorf("%w: actor fetch %s: %v", ErrUpstreamUnavailable, href, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: actor fetch %s returned %d", ErrUpstreamUnavailable, href, resp.StatusCode())
	}
	var doc apActor
	if err := json.Unmarshal(resp.Body(), &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed actor document: %v", ErrUnsupportedProtocol, err)
	}
	if !apActorTypes[doc.Type] || doc.Inbox == "" {
		return nil, fmt.Errorf("%w: actor type %q", ErrUnsupportedProtocol, doc.Type)
	}
	return &model.Actor{
		Username:       username,
		Domain:         domain,
		Protocol:       model.ProtocolActivityPub,
		ActorURI:       doc.ID,
		InboxURI:       doc.Inbox,
		SharedInboxURI: doc.Endpoints.SharedInbox,
		PublicKeyPEM:   doc.PublicKey.PublicKeyPem,
		DisplayName:    doc.Name,
		LastResolvedAt: time.Now(),
	}, nil
}

// ostatusActor builds an actor from the legacy webfinger triple; the salmon
// endpoint doubles as the delivery inbox.
func ostatusActor(doc *jrd, username, domain string) (*model.Actor, error) {
	feed, salmon, magicKey, ok := doc.ostatusLinks()
	if !ok {
		return nil, ErrUnsupportedProtocol
	}
	return &model.Actor{
		Username:       username,
		Domain:         domain,
		Protocol:       model.ProtocolOStatus,
		ActorURI:       feed,
		InboxURI:       salmon,
		PublicKeyPEM:   magicKey,
		LastResolvedAt: time.Now(),
	}, nil
}

// splitHandle splits "user@domain", tolerating a leading @.
func splitHandle(handle string) (username, domain string) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	username, domain, _ = strings.Cut(handle, "@")
	return username, domain
}
