package muteguard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/hazyhaar/horosmeet/control"
	"github.com/hazyhaar/horosmeet/dom/htmldoc"
	"github.com/hazyhaar/horosmeet/overlay"
)

// Report is the result of checking a saved page.
type Report struct {
	OverlaysHidden int            `json:"overlays_hidden"`
	ByTier         map[string]int `json:"by_tier,omitempty"`
	ControlFound   bool           `json:"control_found"`
	Muted          bool           `json:"muted"`
}

// CheckHTML runs both subsystems once over an HTML snapshot, without
// timers: the control is only read, never clicked.
func CheckHTML(ctx context.Context, r io.Reader, logger *slog.Logger) (*Report, error) {
	doc, err := htmldoc.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("muteguard: check: %w", err)
	}

	rep := &Report{ByTier: make(map[string]int)}
	s := overlay.New(overlay.Config{
		Logger:   logger,
		OnHidden: func(tier int) { rep.ByTier[strconv.Itoa(tier)]++ },
	})
	n, err := s.Scan(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("muteguard: check overlays: %w", err)
	}
	rep.OverlaysHidden = n

	el, muted, err := control.Muted(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("muteguard: check control: %w", err)
	}
	if el != nil {
		rep.ControlFound = true
		el.Release(ctx)
	}
	rep.Muted = muted
	return rep, nil
}
