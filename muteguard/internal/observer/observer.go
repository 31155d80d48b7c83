// Package observer is the change watcher of one page: it turns CDP DOM
// events into mutation batches, classifies each batch and runs the
// matching reactions on the next frame, at most once per frame per class.
package observer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/horosmeet/muteguard/mutation"
	"github.com/hazyhaar/horosmeet/observability"
)

// Config for creating an Observer.
type Config struct {
	// Page is the live page. Nil means records only arrive through Feed.
	Page   *rod.Page
	Frames Frames
	Rule   Rule
	// OnReset is called, on its own goroutine, after the page replaced its
	// document. The dispatch table is cleared until the next Bind.
	OnReset func(ctx context.Context)
	Logger  *slog.Logger
}

// Observer watches one page.
type Observer struct {
	page    *rod.Page
	rule    Rule
	onReset func(context.Context)
	logger  *slog.Logger

	nodes *nodeMap
	rawCh chan mutation.Record
	reqCh chan Class
	sched *scheduler

	mu       sync.Mutex
	dispatch Dispatch

	// ctx lives from New to Stop; Start ties it to the caller's context.
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	done    chan struct{}
}

// New creates an Observer. Call Bind and Start to begin.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Frames == nil {
		cfg.Frames = TickerFrames{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		page:    cfg.Page,
		rule:    cfg.Rule,
		onReset: cfg.OnReset,
		logger:  cfg.Logger,
		nodes:   newNodeMap(),
		rawCh:   make(chan mutation.Record, 4096),
		reqCh:   make(chan Class),
		sched:   newScheduler(cfg.Frames),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Bind installs the dispatch table reactions run through.
func (o *Observer) Bind(d Dispatch) {
	o.mu.Lock()
	o.dispatch = d
	o.mu.Unlock()
}

// Start subscribes to the page's DOM events (when a page is set) and runs
// the processing loop until ctx is cancelled or Stop is called.
func (o *Observer) Start(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return fmt.Errorf("observer: already started")
	}
	context.AfterFunc(ctx, o.cancel)

	if o.page != nil {
		newCDPListener(o).start()
		if err := o.initDOMTracking(); err != nil {
			o.cancel()
			close(o.done)
			return fmt.Errorf("observer: init DOM tracking: %w", err)
		}
	}

	go o.loop()
	return nil
}

// Stop ends observation and waits for the loop to exit. An Observer that
// was never started is only cancelled.
func (o *Observer) Stop() {
	o.cancel()
	if o.started.Load() {
		<-o.done
	}
}

// Request schedules the reactions of c for the next frame, as if a batch
// of that class had arrived. It returns once the loop has taken the
// request, or when the Observer stops.
func (o *Observer) Request(c Class) {
	select {
	case o.reqCh <- c:
	case <-o.ctx.Done():
	}
}

// Feed queues records as if they had come from the page. Records fed
// before Start wait in the queue until the loop runs.
func (o *Observer) Feed(recs ...mutation.Record) {
	for _, r := range recs {
		select {
		case o.rawCh <- r:
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Observer) initDOMTracking() error {
	if err := (proto.DOMEnable{}).Call(o.page); err != nil {
		return fmt.Errorf("DOM.enable: %w", err)
	}
	depth := -1
	doc, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(o.page.Context(o.ctx))
	if err != nil {
		return fmt.Errorf("DOM.getDocument: %w", err)
	}
	o.nodes.buildFromDocument(doc.Root)
	o.logger.Debug("observer: DOM tracking initialised", "nodes", o.nodes.size())
	return nil
}

// loop drains records into batches, classifies them and runs due
// reactions when the armed frame arrives. Reactions run on this goroutine,
// one at a time.
func (o *Observer) loop() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			return

		case rec := <-o.rawCh:
			batch := mutation.Batch{rec}
		drain:
			for {
				select {
				case r := <-o.rawCh:
					batch = append(batch, r)
				default:
					break drain
				}
			}
			o.handleBatch(batch)

		case c := <-o.reqCh:
			o.sched.request(o.ctx, c)

		case err := <-o.sched.ready:
			if err != nil && o.ctx.Err() == nil {
				o.logger.Debug("observer: frame wait failed, running anyway", "error", err)
			}
			due := o.sched.take()
			o.mu.Lock()
			d := o.dispatch
			o.mu.Unlock()
			d.run(o.ctx, due, o.logger)
		}
	}
}

func (o *Observer) handleBatch(batch mutation.Batch) {
	for _, rec := range batch {
		observability.MutationsTotal.WithLabelValues(string(rec.Op)).Inc()
		if rec.Op == mutation.OpDocReset {
			o.handleDocReset()
			return
		}
	}

	if c := Classify(batch, o.rule); c != 0 {
		o.sched.request(o.ctx, c)
	}
}

// handleDocReset drops work queued for the old document, rebuilds the
// node map and hands over to OnReset for a fresh bootstrap.
func (o *Observer) handleDocReset() {
	o.logger.Info("observer: document replaced")
	o.sched.drop()
	o.Bind(nil)

	if o.page != nil {
		if err := o.initDOMTracking(); err != nil {
			o.logger.Error("observer: re-init DOM tracking failed", "error", err)
		}
	}
	if o.onReset != nil {
		go o.onReset(o.ctx)
	}
}
