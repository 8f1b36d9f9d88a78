package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/fedigraph/config"
	"github.com/d60-Lab/fedigraph/internal/model"
	"github.com/d60-Lab/fedigraph/internal/repository"
)

func newTestRepo(t *testing.T) repository.ActorRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.Actor{}))
	return repository.NewActorRepository(db)
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestResolver(t *testing.T, repo repository.ActorRepository, rdb *redis.Client, localDomain string) *Resolver {
	t.Helper()
	return New(repo, rdb, config.ResolverConfig{
		Staleness:   time.Hour,
		LockTTL:     5 * time.Second,
		HTTPTimeout: 2 * time.Second,
		Insecure:    true, // httptest servers speak plain http
	}, localDomain)
}

// webfingerJSON renders a JRD document for the given subject and links.
func webfingerJSON(t *testing.T, subject string, links []map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{"subject": subject, "links": links})
	require.NoError(t, err)
	return body
}

func apLinks(host string) []map[string]string {
	return []map[string]string{
		{"rel": "self", "type": typeActivity, "href": "http://" + host + "/users/bob"},
	}
}

func serveActor(w http.ResponseWriter, host string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":                "http://" + host + "/users/bob",
		"type":              "Person",
		"preferredUsername": "bob",
		"name":              "Bob",
		"inbox":             "http://" + host + "/users/bob/inbox",
		"endpoints":         map[string]string{"sharedInbox": "http://" + host + "/inbox"},
		"publicKey": map[string]string{
			"id":           "http://" + host + "/users/bob#main-key",
			"owner":        "http://" + host + "/users/bob",
			"publicKeyPem": "-----BEGIN PUBLIC KEY-----\nstub\n-----END PUBLIC KEY-----",
		},
	})
}

func TestResolveLocalActor(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Actor{Username: "alice", Protocol: model.ProtocolLocal}))

	r := newTestResolver(t, repo, newTestRedis(t), "social.example")

	for _, handle := range []string{"alice", "@alice", "alice@social.example"} {
		got, err := r.Resolve(ctx, handle)
		require.NoError(t, err, handle)
		assert.Equal(t, "alice", got.Username)
		assert.True(t, got.IsLocal())
	}

	_, err := r.Resolve(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveActivityPubActor(t *testing.T) {
	var webfingerCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/webfinger":
			webfingerCalls.Add(1)
			w.Write(webfingerJSON(t, "acct:bob@"+r.Host, apLinks(r.Host)))
		case "/users/bob":
			serveActor(w, r.Host)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	repo := newTestRepo(t)
	r := newTestResolver(t, repo, newTestRedis(t), "social.example")
	ctx := context.Background()

	got, err := r.Resolve(ctx, "bob@"+host)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolActivityPub, got.Protocol)
	assert.Equal(t, "http://"+host+"/users/bob/inbox", got.InboxURI)
	assert.Equal(t, "http://"+host+"/inbox", got.SharedInboxURI)
	assert.WithinDuration(t, time.Now(), got.LastResolvedAt, 5*time.Second)

	// the row is persisted and fresh: a second resolve is cache-only
	again, err := r.Resolve(ctx, "bob@"+host)
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
	assert.Equal(t, int32(1), webfingerCalls.Load())
}

func TestResolveOStatusFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(webfingerJSON(t, "acct:bob@"+r.Host, []map[string]string{
			{"rel": relAtomFeed, "type": typeAtom, "href": "http://" + r.Host + "/users/bob.atom"},
			{"rel": relSalmon, "href": "http://" + r.Host + "/salmon/bob"},
			{"rel": relMagicKey, "href": "data:application/magic-public-key,RSA.stub"},
		}))
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	r := newTestResolver(t, newTestRepo(t), newTestRedis(t), "social.example")
	got, err := r.Resolve(context.Background(), "bob@"+host)
	require.NoError(t, err)
	assert.Equal(t, model.ProtocolOStatus, got.Protocol)
	assert.Equal(t, "http://"+host+"/salmon/bob", got.InboxURI, "salmon endpoint doubles as inbox")
}

func TestResolveUnsupportedProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(webfingerJSON(t, "acct:bob@"+r.Host, nil))
	}))
	defer srv.Close()

	r := newTestResolver(t, newTestRepo(t), newTestRedis(t), "social.example")
	_, err := r.Resolve(context.Background(), "bob@"+srv.Listener.Addr().String())
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestResolveRemoteNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := newTestResolver(t, newTestRepo(t), newTestRedis(t), "social.example")
	_, err := r.Resolve(context.Background(), "ghost@"+srv.Listener.Addr().String())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveRedirectConfirmedHandle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/webfinger":
			// the origin confirms "bob" as the canonical handle for "old"
			w.Write(webfingerJSON(t, "acct:bob@"+r.Host, apLinks(r.Host)))
		case "/users/bob":
			serveActor(w, r.Host)
		}
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	repo := newTestRepo(t)
	r := newTestResolver(t, repo, newTestRedis(t), "social.example")
	ctx := context.Background()

	got, err := r.Resolve(ctx, "old@"+host)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)

	// only the canonical row exists
	stale, err := repo.FindByAcct(ctx, "old", host)
	require.NoError(t, err)
	assert.Nil(t, stale)
}

func TestResolveRedirectMismatchFailsAtDepthTwo(t *testing.T) {
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// never confirm the requested handle: each response points elsewhere
		w.Write(webfingerJSON(t, fmt.Sprintf("acct:hop%d@%s", n.Add(1), r.Host), nil))
	}))
	defer srv.Close()

	r := newTestResolver(t, newTestRepo(t), newTestRedis(t), "social.example")
	_, err := r.Resolve(context.Background(), "old@"+srv.Listener.Addr().String())
	assert.ErrorIs(t, err, ErrRedirectMismatch)
}

func TestResolveLockHeldByOther(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/webfinger":
			w.Write(webfingerJSON(t, "acct:bob@"+r.Host, apLinks(r.Host)))
		case "/users/bob":
			serveActor(w, r.Host)
		}
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	rdb := newTestRedis(t)
	ctx := context.Background()
	// simulate a resolution in flight on another node
	require.NoError(t, rdb.Set(ctx, "lock:resolve:bob@"+host, "other-token", time.Minute).Err())

	repo := newTestRepo(t)
	r := newTestResolver(t, repo, rdb, "social.example")
	_, err := r.Resolve(ctx, "bob@"+host)
	assert.ErrorIs(t, err, ErrResolutionInProgress)

	// with a cached row present the stale answer wins over failing fast
	require.NoError(t, repo.Create(ctx, &model.Actor{
		Username: "bob", Domain: host, Protocol: model.ProtocolActivityPub,
		InboxURI: "http://" + host + "/users/bob/inbox", LastResolvedAt: time.Now().Add(-48 * time.Hour),
	}))
	got, err := r.Resolve(ctx, "bob@"+host)
	require.NoError(t, err)
	assert.Equal(t, "bob", got.Username)
}

func TestResolveServesStaleOnUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Actor{
		Username: "bob", Domain: host, Protocol: model.ProtocolActivityPub,
		InboxURI: "http://" + host + "/users/bob/inbox", LastResolvedAt: time.Now().Add(-48 * time.Hour),
	}))

	r := newTestResolver(t, repo, newTestRedis(t), "social.example")
	got, err := r.Resolve(ctx, "bob@"+host)
	require.NoError(t, err, "a stale cached actor beats a failed refresh")
	assert.Equal(t, "http://"+host+"/users/bob/inbox", got.InboxURI)

	// with no cached row the failure propagates
	_, err = r.Resolve(ctx, "carol@"+host)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestResolveStaleRefreshKeepsID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/webfinger":
			w.Write(webfingerJSON(t, "acct:bob@"+r.Host, apLinks(r.Host)))
		case "/users/bob":
			serveActor(w, r.Host)
		}
	}))
	defer srv.Close()
	host := srv.Listener.Addr().String()

	repo := newTestRepo(t)
	ctx := context.Background()
	old := &model.Actor{
		Username: "bob", Domain: host, Protocol: model.ProtocolActivityPub,
		InboxURI: "http://" + host + "/old-inbox", LastResolvedAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, old))

	r := newTestResolver(t, repo, newTestRedis(t), "social.example")
	got, err := r.Resolve(ctx, "bob@"+host)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID, "refresh updates the row in place")
	assert.Equal(t, "http://"+host+"/users/bob/inbox", got.InboxURI)
}

func TestSplitHandle(t *testing.T) {
	for _, tc := range []struct{ in, user, domain string }{
		{"alice", "alice", ""},
		{"@alice", "alice", ""},
		{"bob@remote.example", "bob", "remote.example"},
		{"@bob@remote.example", "bob", "remote.example"},
		{" bob@remote.example ", "bob", "remote.example"},
	} {
		u, d := splitHandle(tc.in)
		assert.Equal(t, tc.user, u, tc.in)
		assert.Equal(t, tc.domain, d, tc.in)
	}
}
