package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestParseStealth(t *testing.T) {
	cases := map[string]StealthLevel{
		"headless": LevelHeadless,
		"headful":  LevelHeadful,
		"":         LevelHeadful,
		"bogus":    LevelHeadful,
	}
	for in, want := range cases {
		if got := ParseStealth(in); got != want {
			t.Errorf("ParseStealth(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestMatchTargets(t *testing.T) {
	infos := []*proto.TargetTargetInfo{
		{TargetID: "a", Type: proto.TargetTargetInfoTypePage, URL: "https://meet.google.com/abc-defg-hij"},
		{TargetID: "b", Type: proto.TargetTargetInfoTypePage, URL: "https://mail.google.com/"},
		{TargetID: "c", Type: proto.TargetTargetInfoTypeServiceWorker, URL: "https://meet.google.com/sw.js"},
		{TargetID: "d", Type: proto.TargetTargetInfoTypePage, URL: "https://meet.google.com/xyz-uvwx-rst"},
	}
	known := map[proto.TargetTargetID]bool{"d": true}

	got := MatchTargets(infos, "https://meet.google.com/", known)
	if len(got) != 1 || got[0].TargetID != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestResolveRemote_WebSocketPassthrough(t *testing.T) {
	u, err := resolveRemote("ws://127.0.0.1:9222/devtools/browser/x")
	if err != nil {
		t.Fatal(err)
	}
	if u != "ws://127.0.0.1:9222/devtools/browser/x" {
		t.Errorf("got %s", u)
	}
}

func TestManager_StartAfterClose(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Start(t.Context()); err == nil {
		t.Fatal("expected error after Close")
	}
	if m.Stealth() != LevelHeadful {
		t.Errorf("default stealth = %s", m.Stealth())
	}
}

func TestTab_CloseAttachedIsNoop(t *testing.T) {
	called := false
	tab := &Tab{Attached: true, CloseFunc: func(context.Context) error {
		called = true
		return nil
	}}
	if err := tab.Close(); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Fatal("attached tab was closed")
	}
}

func TestTab_CloseUsesFreshContext(t *testing.T) {
	var closeErr error
	calls := 0
	tab := &Tab{PageID: "pg_1", CloseFunc: func(closeCtx context.Context) error {
		calls++
		closeErr = closeCtx.Err()
		if _, ok := closeCtx.Deadline(); !ok {
			t.Error("close context has no deadline")
		}
		return nil
	}}
	if err := tab.Close(); err != nil {
		t.Fatal(err)
	}
	if calls != 1 || closeErr != nil {
		t.Fatalf("calls = %d, ctx err = %v", calls, closeErr)
	}
}

func TestTab_CloseWrapsError(t *testing.T) {
	tab := &Tab{PageID: "pg_1", CloseFunc: func(context.Context) error {
		return errors.New("target gone")
	}}
	err := tab.Close()
	if err == nil || !strings.Contains(err.Error(), "pg_1") {
		t.Fatalf("err = %v", err)
	}
}
