package ratelimit

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/verseforge/verseforge/pkg/log"
	"github.com/verseforge/verseforge/pkg/metrics"
	"github.com/verseforge/verseforge/pkg/types"
)

const (
	// Window is the fixed rate-limit window
	Window = time.Hour

	// captchaThreshold is the fraction of the budget after which clients
	// are asked to solve a captcha.
	captchaThreshold = 0.8

	// Idle actors are reaped after sitting untouched for two windows
	idleAfter    = 2 * Window
	reapInterval = 10 * time.Minute

	mailboxSize = 64
)

// Tier selects the per-identity request budget
type Tier string

const (
	TierAnonymous     Tier = "anonymous"
	TierAuthenticated Tier = "authenticated"
)

// Limits carries the per-tier hourly budgets
type Limits struct {
	Anonymous     int
	Authenticated int
}

func (l Limits) budget(tier Tier) int {
	if tier == TierAuthenticated {
		return l.Authenticated
	}
	return l.Anonymous
}

type opKind int

const (
	opAllow  opKind = iota // consume one unit if available
	opPeek                 // inspect without consuming
	opRecord               // unconditional count, out-of-band accounting
	opReset
)

type message struct {
	op    opKind
	tier  Tier
	reply chan types.RateDecision
}

// actor owns one identity's bucket. Every operation flows through the
// mailbox, so decisions for one identity are linearized without shared
// state: two concurrent requests can never both consume the last unit.
type actor struct {
	mailbox  chan message
	done     chan struct{}
	lastSeen time.Time
}

// Coordinator hands out rate-limit decisions, one actor per identity.
type Coordinator struct {
	limits Limits
	now    func() time.Time
	logger zerolog.Logger

	mu     sync.Mutex
	actors map[string]*actor

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCoordinator(limits Limits) *Coordinator {
	c := &Coordinator{
		limits: limits,
		now:    time.Now,
		logger: log.WithComponent("ratelimit"),
		actors: make(map[string]*actor),
		stopCh: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.reapLoop()
	return c
}

// Allow consumes one unit of the identity's budget if any remains. The
// check and the consumption are a single atomic step inside the actor.
func (c *Coordinator) Allow(identity string, tier Tier) types.RateDecision {
	d := c.send(identity, message{op: opAllow, tier: tier})
	metrics.RateLimitChecks.WithLabelValues(string(tier), strconv.FormatBool(d.Allowed)).Inc()
	return d
}

// Peek reports the identity's current budget without consuming any
func (c *Coordinator) Peek(identity string, tier Tier) types.RateDecision {
	return c.send(identity, message{op: opPeek, tier: tier})
}

// Record counts a request against the identity unconditionally, for
// accounting paths that bypass admission.
func (c *Coordinator) Record(identity string, tier Tier) types.RateDecision {
	return c.send(identity, message{op: opRecord, tier: tier})
}

// Reset clears an identity's bucket, used by support tooling
func (c *Coordinator) Reset(identity string) {
	c.send(identity, message{op: opReset})
}

// Stop shuts down all actors and the reaper
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

func (c *Coordinator) send(identity string, msg message) types.RateDecision {
	msg.reply = make(chan types.RateDecision, 1)

	c.mu.Lock()
	a, ok := c.actors[identity]
	if !ok {
		a = &actor{
			mailbox: make(chan message, mailboxSize),
			done:    make(chan struct{}),
		}
		c.actors[identity] = a
		c.wg.Add(1)
		go c.run(a)
	}
	a.lastSeen = c.now()
	c.mu.Unlock()

	select {
	case a.mailbox <- msg:
	case <-c.stopCh:
		// Shutting down: fail open so in-flight requests complete
		return types.RateDecision{Allowed: true}
	}

	select {
	case d := <-msg.reply:
		return d
	case <-c.stopCh:
		return types.RateDecision{Allowed: true}
	}
}

// run is the per-identity actor loop
func (c *Coordinator) run(a *actor) {
	defer c.wg.Done()

	bucket := types.RateBucket{WindowStart: c.now()}
	for {
		select {
		case msg := <-a.mailbox:
			msg.reply <- c.apply(&bucket, msg)
		case <-a.done:
			return
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) apply(b *types.RateBucket, msg message) types.RateDecision {
	now := c.now()

	if msg.op == opReset {
		*b = types.RateBucket{WindowStart: now}
		return types.RateDecision{Allowed: true}
	}

	// A fresh window resets the counter
	if now.Sub(b.WindowStart) >= Window {
		b.Count = 0
		b.WindowStart = now
		b.CaptchaRequired = false
	}

	limit := c.limits.budget(msg.tier)
	allowed := b.Count < limit

	if msg.op == opAllow && allowed || msg.op == opRecord {
		b.Count++
		b.LastRequestTime = now
		b.CaptchaRequired = float64(b.Count) >= captchaThreshold*float64(limit)
	}

	remaining := limit - b.Count
	if remaining < 0 {
		remaining = 0
	}
	return types.RateDecision{
		Allowed:         allowed,
		Remaining:       remaining,
		ResetAt:         b.WindowStart.Add(Window),
		CaptchaRequired: b.CaptchaRequired,
	}
}

// reapLoop removes actors idle for two full windows
func (c *Coordinator) reapLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.reap()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) reap() {
	cutoff := c.now().Add(-idleAfter)

	c.mu.Lock()
	var reaped int
	for identity, a := range c.actors {
		if a.lastSeen.Before(cutoff) {
			close(a.done)
			delete(c.actors, identity)
			reaped++
		}
	}
	c.mu.Unlock()

	if reaped > 0 {
		c.logger.Debug().Int("reaped", reaped).Msg("reaped idle rate-limit actors")
	}
}

// ActiveIdentities reports how many actors are live, for telemetry
func (c *Coordinator) ActiveIdentities() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.actors)
}
