package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is a Meet page muteguard guards.
type Tab struct {
	Page     *rod.Page
	PageURL  string
	PageID   string
	TargetID proto.TargetTargetID
	// Attached is true for tabs adopted from the user's browser. Those
	// are never closed by muteguard.
	Attached bool

	// CloseFunc closes the page. OpenTab sets it; Close gives it a fresh
	// context because the one the page was opened with is usually already
	// cancelled by shutdown time.
	CloseFunc func(ctx context.Context) error
}

// CloseTimeout bounds closing a tab or the browser during shutdown.
const CloseTimeout = 5 * time.Second

// OpenTab creates a new tab with stealth applied and navigates to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return &Tab{
		Page:     page,
		PageURL:  pageURL,
		PageID:   pageID,
		TargetID: page.TargetID,
		CloseFunc: func(ctx context.Context) error {
			return page.Context(ctx).Close()
		},
	}, nil
}

// Targets lists the page targets currently open in the browser.
func Targets(ctx context.Context, mgr *Manager) ([]*proto.TargetTargetInfo, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	res, err := proto.TargetGetTargets{}.Call(b.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("browser: list targets: %w", err)
	}
	return res.TargetInfos, nil
}

// MatchTargets returns the page targets whose URL starts with prefix and
// whose id is not in known.
func MatchTargets(infos []*proto.TargetTargetInfo, prefix string, known map[proto.TargetTargetID]bool) []*proto.TargetTargetInfo {
	var out []*proto.TargetTargetInfo
	for _, info := range infos {
		if info.Type != proto.TargetTargetInfoTypePage {
			continue
		}
		if !strings.HasPrefix(info.URL, prefix) || known[info.TargetID] {
			continue
		}
		out = append(out, info)
	}
	return out
}

// AttachTab adopts an existing page target without navigating it.
func AttachTab(ctx context.Context, mgr *Manager, info *proto.TargetTargetInfo, pageID string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	page, err := b.Context(ctx).PageFromTarget(info.TargetID)
	if err != nil {
		return nil, fmt.Errorf("browser: attach %s: %w", info.URL, err)
	}
	return &Tab{
		Page:     page,
		PageURL:  info.URL,
		PageID:   pageID,
		TargetID: info.TargetID,
		Attached: true,
	}, nil
}

// Close closes a tab muteguard opened. Attached tabs stay open.
func (t *Tab) Close() error {
	if t.CloseFunc == nil || t.Attached {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), CloseTimeout)
	defer cancel()
	if err := t.CloseFunc(ctx); err != nil {
		return fmt.Errorf("browser: close tab %s: %w", t.PageID, err)
	}
	return nil
}
