// Package muteguard keeps a Google Meet microphone usable: it hides the
// "Microphone muted by system" overlay and clicks the microphone back on
// when the page mutes it by itself. It drives Chrome over the DevTools
// protocol, one Session per loaded Meet document.
package muteguard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jonboulle/clockwork"

	"github.com/hazyhaar/horosmeet/dom"
	"github.com/hazyhaar/horosmeet/idgen"
	"github.com/hazyhaar/horosmeet/muteguard/internal/browser"
	"github.com/hazyhaar/horosmeet/muteguard/internal/observer"
	"github.com/hazyhaar/horosmeet/muteguard/internal/pagedom"
	"github.com/hazyhaar/horosmeet/observability"
)

// Watcher is the top-level orchestrator: it owns the browser and one
// guarded page per Meet tab.
type Watcher struct {
	cfg    *Config
	mgr    *browser.Manager
	clock  clockwork.Clock
	logger *slog.Logger

	mu     sync.Mutex
	pages  map[proto.TargetTargetID]*guardedPage
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher from configuration.
func New(cfg *Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	mgr := browser.NewManager(browser.Config{
		RemoteURL:   cfg.Browser.Remote,
		Stealth:     browser.ParseStealth(cfg.Browser.Stealth),
		XvfbDisplay: cfg.Browser.XvfbDisplay,
		UserDataDir: cfg.Browser.UserDataDir,
		Bin:         cfg.Browser.Bin,
		Logger:      logger,
	})
	return &Watcher{
		cfg:    cfg,
		mgr:    mgr,
		clock:  clockwork.NewRealClock(),
		logger: logger,
		pages:  make(map[proto.TargetTargetID]*guardedPage),
	}
}

// Start launches or connects to the browser, guards every configured URL
// and, when attach prefixes are configured, starts tab discovery.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("muteguard: start browser: %w", err)
	}
	w.logger.Info("muteguard: browser ready", "stealth", w.mgr.Stealth(), "pages", len(w.cfg.Pages))

	attach := false
	for _, pc := range w.cfg.Pages {
		if pc.Attach != "" {
			attach = true
			continue
		}
		if err := w.OpenPage(ctx, pc.URL, pc.ID); err != nil {
			w.logger.Error("muteguard: failed to guard page", "url", pc.URL, "error", err)
		}
	}

	if attach {
		dctx, cancel := context.WithCancel(ctx)
		w.mu.Lock()
		w.cancel = cancel
		w.mu.Unlock()
		w.discover(dctx)
		w.wg.Add(1)
		go w.discoveryLoop(dctx)
	}
	return nil
}

// OpenPage opens pageURL in a new tab and guards it.
func (w *Watcher) OpenPage(ctx context.Context, pageURL, pageID string) error {
	if pageID == "" {
		pageID = idgen.Page()
	}
	tab, err := browser.OpenTab(ctx, w.mgr, pageURL, pageID)
	if err != nil {
		return fmt.Errorf("muteguard: open tab: %w", err)
	}
	if err := w.guardTab(ctx, tab); err != nil {
		tab.Close()
		return err
	}
	return nil
}

// Sessions reports how many pages are guarded.
func (w *Watcher) Sessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pages)
}

// Stop ends every observer, closes the tabs muteguard opened and
// disconnects from the browser.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	w.mu.Lock()
	for id, gp := range w.pages {
		gp.stop()
		delete(w.pages, id)
		w.logger.Info("muteguard: stopped page", "id", gp.pageID)
	}
	w.mu.Unlock()

	w.mgr.Close()
}

func (w *Watcher) guardTab(ctx context.Context, tab *browser.Tab) error {
	gp := w.newGuardedPage(pagedom.New(tab.Page), tab.Page, tab.PageID)
	gp.tab = tab
	if err := gp.start(ctx); err != nil {
		return fmt.Errorf("muteguard: guard %s: %w", tab.PageURL, err)
	}

	w.mu.Lock()
	w.pages[tab.TargetID] = gp
	w.mu.Unlock()

	w.logger.Info("muteguard: guarding page",
		"url", tab.PageURL, "id", tab.PageID, "attached", tab.Attached)
	return nil
}

func (w *Watcher) discoveryLoop(ctx context.Context) {
	defer w.wg.Done()
	ticker := w.clock.NewTicker(w.cfg.Discovery.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			w.discover(ctx)
		}
	}
}

// discover adopts new tabs matching an attach prefix and drops guarded
// tabs that have been closed.
func (w *Watcher) discover(ctx context.Context) {
	infos, err := browser.Targets(ctx, w.mgr)
	if err != nil {
		w.logger.Warn("muteguard: list tabs failed", "error", err)
		return
	}

	w.mu.Lock()
	known := make(map[proto.TargetTargetID]bool, len(w.pages))
	for id := range w.pages {
		known[id] = true
	}
	w.mu.Unlock()

	w.prune(infos)

	for _, pc := range w.cfg.Pages {
		if pc.Attach == "" {
			continue
		}
		for _, info := range browser.MatchTargets(infos, pc.Attach, known) {
			known[info.TargetID] = true
			pageID := pc.ID
			if pageID == "" {
				pageID = idgen.Page()
			}
			tab, err := browser.AttachTab(ctx, w.mgr, info, pageID)
			if err != nil {
				w.logger.Warn("muteguard: attach failed", "url", info.URL, "error", err)
				continue
			}
			if err := w.guardTab(ctx, tab); err != nil {
				w.logger.Warn("muteguard: attach failed", "url", info.URL, "error", err)
			}
		}
	}
}

func (w *Watcher) prune(infos []*proto.TargetTargetInfo) {
	open := make(map[proto.TargetTargetID]bool, len(infos))
	for _, info := range infos {
		open[info.TargetID] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for id, gp := range w.pages {
		if open[id] {
			continue
		}
		gp.stop()
		delete(w.pages, id)
		w.logger.Info("muteguard: tab closed", "id", gp.pageID)
	}
}

func (w *Watcher) frames(page *rod.Page) observer.Frames {
	if w.cfg.Policy.FrameSource == "raf" && page != nil {
		return observer.PageFrames{Page: page}
	}
	return observer.TickerFrames{Interval: w.cfg.Policy.FrameInterval}
}

// guardedPage is one page under guard: the observer lives as long as the
// tab; the Session is replaced on every document load.
type guardedPage struct {
	w      *Watcher
	doc    dom.Document
	pageID string
	frames observer.Frames
	obs    *observer.Observer
	tab    *browser.Tab

	mu      sync.Mutex
	session *Session
	active  bool
}

func (w *Watcher) newGuardedPage(doc dom.Document, page *rod.Page, pageID string) *guardedPage {
	gp := &guardedPage{
		w:      w,
		doc:    doc,
		pageID: pageID,
		frames: w.frames(page),
	}
	gp.obs = observer.New(observer.Config{
		Page:    page,
		Frames:  gp.frames,
		Rule:    WatchRule,
		OnReset: gp.reset,
		Logger:  w.logger.With("page", pageID),
	})
	return gp
}

func (gp *guardedPage) newSession() *Session {
	s := NewSession(SessionConfig{
		Doc:          gp.doc,
		PageID:       gp.pageID,
		Frames:       gp.frames,
		Clock:        gp.w.clock,
		RecheckDelay: gp.w.cfg.Policy.RecheckDelay,
		Cooldown:     gp.w.cfg.Policy.Cooldown,
		Logger:       gp.w.logger,
		Schedule:     gp.obs.Request,
	})
	gp.mu.Lock()
	gp.session = s
	gp.mu.Unlock()
	return s
}

// start bootstraps the first Session and starts the observer from inside
// the bootstrap, once body exists.
func (gp *guardedPage) start(ctx context.Context) error {
	s := gp.newSession()
	err := s.Bootstrap(ctx, func(ctx context.Context) error {
		gp.obs.Bind(s.Dispatch())
		return gp.obs.Start(ctx)
	})
	if err != nil {
		gp.obs.Stop()
		return err
	}
	gp.mu.Lock()
	gp.active = true
	gp.mu.Unlock()
	observability.SessionsActive.Inc()
	return nil
}

// reset runs after the page replaced its document: a fresh Session is
// bootstrapped against the new document and bound to the observer.
func (gp *guardedPage) reset(ctx context.Context) {
	s := gp.newSession()
	err := s.Bootstrap(ctx, func(context.Context) error {
		gp.obs.Bind(s.Dispatch())
		return nil
	})
	if err != nil && ctx.Err() == nil {
		gp.w.logger.Error("muteguard: re-bootstrap failed", "page", gp.pageID, "error", err)
	}
}

func (gp *guardedPage) current() *Session {
	gp.mu.Lock()
	defer gp.mu.Unlock()
	return gp.session
}

func (gp *guardedPage) stop() {
	gp.obs.Stop()
	gp.mu.Lock()
	wasActive := gp.active
	gp.active = false
	gp.mu.Unlock()
	if wasActive {
		observability.SessionsActive.Dec()
	}
	if gp.tab != nil {
		gp.tab.Close()
	}
}
