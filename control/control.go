// Package control reverts Meet's automatic mute of the microphone toggle.
//
// A correction runs through a small state machine:
//
//	Idle -> Pending (guard set) -> [RecheckDelay] -> Activated | Skipped -> [Cooldown] -> Idle
//
// The delay lets the page finish its own handling of the mute before the
// attribute is read again; the cooldown keeps the guard set long enough for
// the click to propagate back into the attribute.
package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hazyhaar/horosmeet/dom"
)

const (
	// Selector finds the microphone toggle: a stable jsname plus the
	// presence of the state attribute.
	Selector = `button[jsname="hw0c9"][data-is-muted]`
	// IDAttr and IDValue identify the toggle in mutation records.
	IDAttr  = "jsname"
	IDValue = "hw0c9"
	// StateAttr holds the toggle state; MutedValue is the unwanted value.
	StateAttr  = "data-is-muted"
	MutedValue = "true"

	DefaultRecheckDelay = 100 * time.Millisecond
	DefaultCooldown     = 500 * time.Millisecond
)

// State is a step of the correction cycle.
type State int

const (
	Idle      State = iota // guard cleared
	Pending                // unwanted value seen, guard set
	Activated              // still muted after the delay, control clicked
	Skipped                // value changed or control gone before the delay elapsed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Activated:
		return "activated"
	case Skipped:
		return "skipped"
	}
	return "unknown"
}

// Config for a Corrector.
type Config struct {
	Doc          dom.Document
	Guard        *Guard
	Clock        clockwork.Clock
	RecheckDelay time.Duration
	Cooldown     time.Duration
	Logger       *slog.Logger
	// OnTransition, if set, observes every state change.
	OnTransition func(State)
}

// Corrector watches the toggle and clicks it back when the page mutes it.
type Corrector struct {
	doc      dom.Document
	guard    *Guard
	clock    clockwork.Clock
	delay    time.Duration
	cooldown time.Duration
	logger   *slog.Logger
	onState  func(State)
}

// New creates a Corrector. Doc is required; a nil Guard gets a private one.
func New(cfg Config) *Corrector {
	if cfg.Guard == nil {
		cfg.Guard = &Guard{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RecheckDelay <= 0 {
		cfg.RecheckDelay = DefaultRecheckDelay
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Corrector{
		doc:      cfg.Doc,
		guard:    cfg.Guard,
		clock:    cfg.Clock,
		delay:    cfg.RecheckDelay,
		cooldown: cfg.Cooldown,
		logger:   cfg.Logger,
		onState:  cfg.OnTransition,
	}
}

// Muted reports whether the toggle exists and reads as muted. A missing
// toggle is not an error. A non-nil element is returned to the caller,
// who must release it.
func Muted(ctx context.Context, doc dom.Document) (dom.Element, bool, error) {
	el, ok, err := doc.Query(ctx, Selector)
	if err != nil || !ok {
		return nil, false, err
	}
	v, _, err := el.Attr(ctx, StateAttr)
	if err != nil {
		el.Release(ctx)
		return nil, false, err
	}
	return el, v == MutedValue, nil
}

// Check inspects the toggle and, when it reads muted and no correction is
// in flight, starts one. It returns true if a correction was started.
// Check never blocks: the recheck and the cooldown run on timers.
func (c *Corrector) Check(ctx context.Context) (bool, error) {
	if c.guard.Active() {
		return false, nil
	}

	el, muted, err := Muted(ctx, c.doc)
	if el != nil {
		el.Release(ctx)
	}
	if err != nil || !muted {
		return false, err
	}

	if !c.guard.TryAcquire() {
		return false, nil
	}
	c.transition(Pending)
	c.logger.Info("control: page muted the microphone, unmuting")

	c.clock.AfterFunc(c.delay, func() { c.recheck(ctx) })
	return true, nil
}

func (c *Corrector) recheck(ctx context.Context) {
	defer c.clock.AfterFunc(c.cooldown, func() {
		c.guard.Release()
		c.transition(Idle)
	})

	el, muted, err := Muted(ctx, c.doc)
	if err != nil {
		c.logger.Debug("control: recheck", "error", err)
	}
	if el != nil {
		defer el.Release(ctx)
	}
	if !muted {
		c.transition(Skipped)
		return
	}
	if err := el.Click(ctx); err != nil {
		c.logger.Warn("control: click failed", "error", err)
		c.transition(Skipped)
		return
	}
	c.logger.Info("control: clicked unmute")
	c.transition(Activated)
}

func (c *Corrector) transition(s State) {
	if c.onState != nil {
		c.onState(s)
	}
}
