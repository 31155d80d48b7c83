package muteguard

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hazyhaar/horosmeet/control"
	"github.com/hazyhaar/horosmeet/dom"
	"github.com/hazyhaar/horosmeet/idgen"
	"github.com/hazyhaar/horosmeet/muteguard/internal/observer"
	"github.com/hazyhaar/horosmeet/observability"
	"github.com/hazyhaar/horosmeet/overlay"
)

// StyleID is the id of the <style> element carrying the hidden rule.
const StyleID = "muteguard-styles"

// WatchRule tells the observer which attribute records concern the
// microphone toggle.
var WatchRule = observer.Rule{
	WatchAttr: control.StateAttr,
	IDAttr:    control.IDAttr,
	IDValue:   control.IDValue,
}

// SessionConfig configures one Session.
type SessionConfig struct {
	Doc    dom.Document
	PageID string
	// Frames paces the wait for document.body. Nil means a 16ms ticker.
	Frames       observer.Frames
	Clock        clockwork.Clock
	RecheckDelay time.Duration
	Cooldown     time.Duration
	Marker       dom.Marker
	Logger       *slog.Logger
	// OnTransition observes the corrector's state changes.
	OnTransition func(control.State)
	// Schedule, if set, queues the initial pass onto the observer loop so
	// it never overlaps a reaction. Nil runs it on the bootstrap caller.
	Schedule func(observer.Class)
}

// Session is muteguard's state for one loaded document: the reaction
// guard, the two subsystems and the one-time bootstrap. A new page load
// gets a new Session.
type Session struct {
	ID string

	doc        dom.Document
	frames     observer.Frames
	schedule   func(observer.Class)
	marker     dom.Marker
	guard      *control.Guard
	suppressor *overlay.Suppressor
	corrector  *control.Corrector
	logger     *slog.Logger

	once    sync.Once
	bootErr error
}

// NewSession creates a Session. Nothing touches the document until
// Bootstrap.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Frames == nil {
		cfg.Frames = observer.TickerFrames{}
	}
	if cfg.Marker.Class == "" {
		cfg.Marker = dom.DefaultMarker
	}

	s := &Session{
		ID:       idgen.Session(),
		doc:      cfg.Doc,
		frames:   cfg.Frames,
		schedule: cfg.Schedule,
		marker:   cfg.Marker,
		guard:    &control.Guard{},
	}
	s.logger = cfg.Logger.With("session", s.ID, "page", cfg.PageID)

	s.suppressor = overlay.New(overlay.Config{
		Marker: cfg.Marker,
		Logger: s.logger,
		OnHidden: func(tier int) {
			observability.OverlaysHidden.WithLabelValues(strconv.Itoa(tier)).Inc()
		},
	})

	hook := cfg.OnTransition
	s.corrector = control.New(control.Config{
		Doc:          cfg.Doc,
		Guard:        s.guard,
		Clock:        cfg.Clock,
		RecheckDelay: cfg.RecheckDelay,
		Cooldown:     cfg.Cooldown,
		Logger:       s.logger,
		OnTransition: func(st control.State) {
			if st == control.Activated {
				observability.UnmuteClicks.Inc()
			}
			if hook != nil {
				hook(st)
			}
		},
	})
	return s
}

// Guard exposes the reaction guard.
func (s *Session) Guard() *control.Guard { return s.guard }

// Bootstrap prepares the document once: it waits for body, injects the
// hidden rule, calls start to attach the change watcher, then runs one
// overlay scan and one control check for state that predates the
// watcher. With a Schedule set, that pass is queued on the observer loop
// instead of run inline. Later calls return the first call's result.
func (s *Session) Bootstrap(ctx context.Context, start func(context.Context) error) error {
	s.once.Do(func() {
		s.bootErr = s.bootstrap(ctx, start)
	})
	return s.bootErr
}

func (s *Session) bootstrap(ctx context.Context, start func(context.Context) error) error {
	for {
		ok, err := s.doc.HasBody(ctx)
		if err != nil {
			return fmt.Errorf("session: wait body: %w", err)
		}
		if ok {
			break
		}
		if err := s.frames.Next(ctx); err != nil {
			return fmt.Errorf("session: wait body: %w", err)
		}
	}

	inserted, err := s.doc.InjectStyle(ctx, StyleID, s.marker.CSS())
	if err != nil {
		return fmt.Errorf("session: inject style: %w", err)
	}
	if inserted {
		s.logger.Debug("session: style injected", "id", StyleID)
	}

	if start != nil {
		if err := start(ctx); err != nil {
			return fmt.Errorf("session: start observer: %w", err)
		}
	}

	if s.schedule != nil {
		s.schedule(observer.ClassOverlay | observer.ClassControl)
	} else {
		s.ScanOverlays(ctx)
		s.CheckControl(ctx)
	}
	s.logger.Info("session: observer started")
	return nil
}

// ScanOverlays runs the overlay suppressor. Errors and panics are logged
// and counted, never returned.
func (s *Session) ScanOverlays(ctx context.Context) {
	defer s.recoverScan(observability.SubsystemOverlay)
	observability.ScansTotal.WithLabelValues(observability.SubsystemOverlay).Inc()

	if _, err := s.suppressor.Scan(ctx, s.doc); err != nil {
		observability.ScanErrors.WithLabelValues(observability.SubsystemOverlay).Inc()
		s.logger.Warn("overlay: scan failed", "error", err)
	}
}

// CheckControl runs the state corrector once.
func (s *Session) CheckControl(ctx context.Context) {
	defer s.recoverScan(observability.SubsystemControl)
	observability.ScansTotal.WithLabelValues(observability.SubsystemControl).Inc()

	started, err := s.corrector.Check(ctx)
	if err != nil {
		observability.ScanErrors.WithLabelValues(observability.SubsystemControl).Inc()
		s.logger.Warn("control: check failed", "error", err)
		return
	}
	if started {
		observability.MuteDetected.Inc()
	}
}

func (s *Session) recoverScan(subsystem string) {
	if r := recover(); r != nil {
		observability.ScanErrors.WithLabelValues(subsystem).Inc()
		s.logger.Error("session: scan panicked", "subsystem", subsystem, "panic", r)
	}
}

// Dispatch returns the observer reactions bound to this Session.
func (s *Session) Dispatch() observer.Dispatch {
	return observer.Dispatch{
		observer.ClassOverlay: s.ScanOverlays,
		observer.ClassControl: s.CheckControl,
	}
}
