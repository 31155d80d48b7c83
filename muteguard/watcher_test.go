package muteguard

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/horosmeet/dom"
	"github.com/hazyhaar/horosmeet/dom/htmldoc"
	"github.com/hazyhaar/horosmeet/muteguard/internal/browser"
	"github.com/hazyhaar/horosmeet/muteguard/internal/observer"
	"github.com/hazyhaar/horosmeet/muteguard/mutation"
)

func testConfig() *Config {
	cfg := &Config{Pages: []PageConfig{{URL: "https://meet.google.com/abc-defg-hij"}}}
	cfg.ApplyDefaults()
	cfg.Policy.FrameInterval = time.Millisecond
	return cfg
}

func TestWatcher_FrameSource(t *testing.T) {
	cfg := testConfig()
	w := New(cfg, nil)
	if _, ok := w.frames(nil).(observer.TickerFrames); !ok {
		t.Fatalf("default frames = %T", w.frames(nil))
	}

	cfg.Policy.FrameSource = "raf"
	// Without a live page there is nothing to request frames from.
	if _, ok := w.frames(nil).(observer.TickerFrames); !ok {
		t.Fatalf("raf without page = %T", w.frames(nil))
	}
}

func TestWatcher_PruneClosedTabs(t *testing.T) {
	w := New(testConfig(), nil)
	doc := parse(t, `<body></body>`)
	for _, id := range []proto.TargetTargetID{"a", "b"} {
		gp := w.newGuardedPage(doc, nil, string(id))
		if err := gp.start(context.Background()); err != nil {
			t.Fatal(err)
		}
		w.pages[id] = gp
	}
	if w.Sessions() != 2 {
		t.Fatalf("sessions = %d", w.Sessions())
	}

	w.prune([]*proto.TargetTargetInfo{{TargetID: "a", Type: proto.TargetTargetInfoTypePage}})
	if w.Sessions() != 1 {
		t.Fatalf("sessions after prune = %d", w.Sessions())
	}
	if _, ok := w.pages["a"]; !ok {
		t.Fatal("open tab was pruned")
	}
	w.prune(nil)
	if w.Sessions() != 0 {
		t.Fatalf("sessions after closing all = %d", w.Sessions())
	}
}

func TestGuardedPage_ReactsToMutations(t *testing.T) {
	w := New(testConfig(), nil)
	doc := parse(t, `<html><head></head><body></body></html>`)
	gp := w.newGuardedPage(doc, nil, "pg_test")
	if err := gp.start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer gp.stop()

	appendAlert(t, doc)
	gp.obs.Feed(mutation.Record{Op: mutation.OpInsert, NodeID: 10, Tag: "div"})

	waitHidden(t, doc, `[role="alert"]`)
}

func TestGuardedPage_ResetStartsFreshSession(t *testing.T) {
	w := New(testConfig(), nil)
	doc := parse(t, `<html><head></head><body></body></html>`)
	gp := w.newGuardedPage(doc, nil, "pg_test")
	if err := gp.start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer gp.stop()
	first := gp.current()

	gp.obs.Feed(mutation.Record{Op: mutation.OpDocReset})

	deadline := time.Now().Add(2 * time.Second)
	for gp.current() == first {
		if time.Now().After(deadline) {
			t.Fatal("no new session after document reset")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if gp.current().ID == first.ID {
		t.Fatal("session id reused")
	}

	// The new session is bound: an inserted overlay is still hidden.
	// The rebind happens at the end of the new bootstrap, so keep feeding
	// until the reaction lands.
	appendAlert(t, doc)
	deadline = time.Now().Add(2 * time.Second)
	for {
		gp.obs.Feed(mutation.Record{Op: mutation.OpInsert, NodeID: 11, Tag: "div"})
		if isHidden(doc, `[role="alert"]`) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("overlay not hidden after reset")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatcher_StopClosesTabsAfterCancel(t *testing.T) {
	w := New(testConfig(), nil)
	doc := parse(t, `<html><head></head><body></body></html>`)
	ctx, cancel := context.WithCancel(context.Background())

	gp := w.newGuardedPage(doc, nil, "pg_test")
	var closes int
	var closeErr error
	gp.tab = &browser.Tab{
		PageID: "pg_test",
		CloseFunc: func(ctx context.Context) error {
			closes++
			closeErr = ctx.Err()
			return nil
		},
	}
	if err := gp.start(ctx); err != nil {
		t.Fatal(err)
	}
	w.pages["t1"] = gp

	// Shutdown order in the daemon: the run context ends, then Stop.
	cancel()
	w.Stop()

	if closes != 1 {
		t.Fatalf("tab closed %d times, want 1", closes)
	}
	if closeErr != nil {
		t.Fatalf("tab closed with a dead context: %v", closeErr)
	}
	if w.Sessions() != 0 {
		t.Fatalf("sessions after stop = %d", w.Sessions())
	}
}

func appendAlert(t *testing.T, doc *htmldoc.Document) {
	t.Helper()
	body, ok, err := doc.Query(context.Background(), "body")
	if err != nil || !ok {
		t.Fatalf("body: %v %v", ok, err)
	}
	if err := body.(*htmldoc.Element).AppendHTML(`<div role="alert">muted by system</div>`); err != nil {
		t.Fatal(err)
	}
}

func isHidden(doc dom.Document, selector string) bool {
	el, ok, err := doc.Query(context.Background(), selector)
	if err != nil || !ok {
		return false
	}
	hidden, _ := el.HasClass(context.Background(), dom.DefaultMarker.Class)
	return hidden
}

func waitHidden(t *testing.T, doc dom.Document, selector string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !isHidden(doc, selector) {
		if time.Now().After(deadline) {
			t.Fatalf("%s not hidden", selector)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
