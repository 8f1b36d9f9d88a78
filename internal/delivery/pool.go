package delivery

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/fedigraph/config"
	"github.com/d60-Lab/fedigraph/internal/repository"
	"github.com/d60-Lab/fedigraph/pkg/logger"
)

// Job is one delivery obligation: an activity bound for a single inbox.
// Ephemeral; it lives only in the queue and in retry timers. When Inbox is
// empty the worker resolves Acct first and fills in the destination.
type Job struct {
	Activity Activity
	FromID   string // signing (local) actor
	Protocol string // destination protocol, selects the signer
	Inbox    string
	Domain   string
	// Acct 目标句柄，Inbox 为空时由 worker 解析补全
	Acct         string
	PreferShared bool
	Attempts     int
	enqAt        time.Time
}

// defaultBackoff is the retry ladder for transient failures, indexed by
// attempt count (stegodon-style, capped at the last step).
var defaultBackoff = []time.Duration{
	5 * time.Second, 30 * time.Second, 2 * time.Minute,
	10 * time.Minute, time.Hour, 6 * time.Hour,
}

// Pool executes delivery jobs on a fixed set of workers. 2xx discards the
// job, 4xx (except 429) is a permanent failure logged and dropped, 429/5xx
// and network errors retry with backoff up to the attempt cap. A per-domain
// breaker short-circuits unreachable servers so they cannot consume worker
// capacity needed for healthy ones.
type Pool struct {
	ch        chan Job
	workers   int
	client    *http.Client
	signers   SignerRegistry
	actors    repository.ActorRepository
	resolver  AcctResolver // optional, fills inbox-less jobs
	breaker   *Breaker
	limiter   *rate.Limiter
	backoff   []time.Duration
	maxTries  int
	metricsCh chan time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewPool(cfg config.DeliveryConfig, actors repository.ActorRepository, resolver AcctResolver, signers SignerRegistry) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 10000
	}
	maxTries := cfg.MaxAttempts
	if maxTries <= 0 {
		maxTries = 8
	}
	rps := cfg.OutboundRPS
	if rps <= 0 {
		rps = 50
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		ch:        make(chan Job, queueSize),
		workers:   workers,
		client:    &http.Client{Timeout: timeout},
		signers:   signers,
		actors:    actors,
		resolver:  resolver,
		breaker:   NewBreaker(cfg.BreakerThreshold, cfg.BreakerCoolOff),
		limiter:   rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		backoff:   defaultBackoff,
		maxTries:  maxTries,
		metricsCh: make(chan time.Duration, 65536),
		stopCh:    make(chan struct{}),
	}
}

// SetBackoff overrides the retry ladder (benchmarks and tests).
func (p *Pool) SetBackoff(ladder []time.Duration) {
	if len(ladder) > 0 {
		p.backoff = ladder
	}
}

// Breaker exposes the per-domain circuit breaker.
func (p *Pool) Breaker() *Breaker { return p.breaker }

// Start 启动 worker 并返回停止函数，停止时短暂等待队列排空
func (p *Pool) Start() func(context.Context) error {
	for i := 0; i < p.workers; i++ {
		go p.loop()
	}
	return func(ctx context.Context) error {
		p.stopOnce.Do(func() { close(p.stopCh) })
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timeout:
				return nil
			default:
				if len(p.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

// Enqueue submits a job without blocking; a full queue drops with a warning.
// Federation load must never fail the triggering publish.
func (p *Pool) Enqueue(job Job) bool {
	if job.enqAt.IsZero() {
		job.enqAt = time.Now()
	}
	select {
	case p.ch <- job:
		return true
	default:
		logger.Warn("delivery queue full, drop job",
			zap.String("inbox", job.Inbox), zap.String("activity", job.Activity.ID))
		return false
	}
}

// Metrics 返回投递耗时只读通道（每成功一条发送一次）
func (p *Pool) Metrics() <-chan time.Duration { return p.metricsCh }

// QueueLen 当前队列长度（采样值）
func (p *Pool) QueueLen() int { return len(p.ch) }

func (p *Pool) loop() {
	for {
		select {
		case job := <-p.ch:
			p.process(job)
		case <-p.stopCh:
			return
		}
	}
}

func (p *Pool) process(job Job) {
	if !p.breaker.Allow(job.Domain) {
		// fail fast without a network call; retry after the cool-off
		p.retryLater(job, p.breaker.CoolOff(), "breaker open")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout+5*time.Second)
	defer cancel()
	if err := p.limiter.Wait(ctx); err != nil {
		p.retryLater(job, p.nextBackoff(job), "rate limiter")
		return
	}

	// inbox-less jobs carry only the handle; resolve it here so the
	// triggering publish never waited on discovery
	if job.Inbox == "" {
		if p.resolver == nil {
			logger.Warn("delivery: no resolver for inbox-less job, drop", zap.String("acct", job.Acct))
			return
		}
		target, err := p.resolver.Resolve(ctx, job.Acct)
		if err != nil {
			logger.Warn("delivery: recipient unresolvable, drop",
				zap.String("acct", job.Acct), zap.Error(err))
			return
		}
		job.Inbox = target.DeliveryInbox(job.PreferShared)
		if job.Inbox == "" {
			logger.Warn("delivery: resolved actor has no inbox, drop", zap.String("acct", job.Acct))
			return
		}
		job.Protocol = target.Protocol
		job.Domain = domainOf(job.Inbox, target.Domain)
	}

	from, err := p.actors.FindByID(ctx, job.FromID)
	if err != nil {
		logger.Warn("delivery: signing actor missing, drop",
			zap.String("actor", job.FromID), zap.Error(err))
		return
	}
	signer, ok := p.signers[job.Protocol]
	if !ok {
		logger.Warn("delivery: no signer for protocol, drop",
			zap.String("protocol", job.Protocol), zap.String("inbox", job.Inbox))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.Inbox, bytes.NewReader(job.Activity.Body))
	if err != nil {
		logger.Warn("delivery: bad inbox url, drop", zap.String("inbox", job.Inbox), zap.Error(err))
		return
	}
	req.Header.Set("User-Agent", "fedigraph/1.0")
	if err := signer.Sign(req, from, job.Activity.Body); err != nil {
		logger.Warn("delivery: sign failed, drop", zap.String("inbox", job.Inbox), zap.Error(err))
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure(job.Domain)
		p.retryLater(job, p.nextBackoff(job), err.Error())
		return
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		p.breaker.RecordSuccess(job.Domain)
		select {
		case p.metricsCh <- time.Since(job.enqAt):
		default:
		}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		p.breaker.RecordFailure(job.Domain)
		p.retryLater(job, p.nextBackoff(job), resp.Status)
	default:
		// remaining 4xx: the server answered and rejected, do not retry
		p.breaker.RecordSuccess(job.Domain)
		logger.Warn("delivery: permanent failure, drop",
			zap.String("inbox", job.Inbox),
			zap.String("activity", job.Activity.ID),
			zap.Int("status", resp.StatusCode))
	}
}

func (p *Pool) nextBackoff(job Job) time.Duration {
	i := job.Attempts
	if i >= len(p.backoff) {
		i = len(p.backoff) - 1
	}
	return p.backoff[i]
}

func (p *Pool) retryLater(job Job, delay time.Duration, reason string) {
	job.Attempts++
	if job.Attempts >= p.maxTries {
		logger.Warn("delivery: giving up",
			zap.String("inbox", job.Inbox),
			zap.String("activity", job.Activity.ID),
			zap.Int("attempts", job.Attempts),
			zap.String("reason", reason))
		return
	}
	logger.Debug("delivery: transient failure, will retry",
		zap.String("inbox", job.Inbox),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.String("reason", reason))
	time.AfterFunc(delay, func() {
		select {
		case <-p.stopCh:
		default:
			p.Enqueue(job)
		}
	})
}
