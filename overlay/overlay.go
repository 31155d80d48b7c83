// Package overlay hides the "Microphone muted by system" notification that
// Meet injects when the OS or browser mutes the microphone.
//
// Matching elements are marked hidden, never removed: the page keeps its
// own references to the overlay and may touch it later. Marking is
// monotonic; nothing here ever unmarks an element.
package overlay

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hazyhaar/horosmeet/dom"
)

// Selectors and phrases used by the three detection tiers.
const (
	RoleSelector  = `[role="dialog"], [role="alert"], [role="alertdialog"]`
	ClassSelector = `.TZFSLb, .P9KVBf, [data-is-persistent="true"]`
)

var (
	// dialogPhrases identify a role=dialog/alert overlay.
	dialogPhrases = []string{"Microphone muted by system", "muted by system", "Open Sound Settings"}
	// popupPhrases identify class-matched overlays and loose text nodes.
	popupPhrases = []string{"Microphone muted by system", "muted by system"}
	popupRoles   = map[string]bool{"dialog": true, "alert": true, "alertdialog": true}
)

// MaxAncestorHops bounds the walk from a matching text node to its popup
// container.
const MaxAncestorHops = 10

// Config for a Suppressor.
type Config struct {
	Marker dom.Marker
	Logger *slog.Logger
	// OnHidden, if set, is called once per newly hidden element.
	OnHidden func(tier int)
}

// Suppressor scans a document for the overlay and hides every match.
type Suppressor struct {
	marker   dom.Marker
	logger   *slog.Logger
	onHidden func(int)
}

// New creates a Suppressor. A zero Marker means dom.DefaultMarker.
func New(cfg Config) *Suppressor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Marker.Class == "" {
		cfg.Marker = dom.DefaultMarker
	}
	return &Suppressor{marker: cfg.Marker, logger: cfg.Logger, onHidden: cfg.OnHidden}
}

// Scan runs the three detection tiers and returns how many elements it
// newly hid. Elements already carrying the marker class are skipped, so a
// second scan over an unchanged document hides nothing.
//
// A tier whose query fails is abandoned and its error returned after the
// remaining tiers ran; failures on individual elements are skipped.
func (s *Suppressor) Scan(ctx context.Context, doc dom.Document) (int, error) {
	hidden := 0
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := s.scanSelector(ctx, doc, 1, RoleSelector, dialogPhrases)
	hidden += n
	keep(err)

	n, err = s.scanSelector(ctx, doc, 2, ClassSelector, popupPhrases)
	hidden += n
	keep(err)

	n, err = s.scanText(ctx, doc)
	hidden += n
	keep(err)

	return hidden, firstErr
}

func (s *Suppressor) scanSelector(ctx context.Context, doc dom.Document, tier int, selector string, phrases []string) (int, error) {
	els, err := doc.QueryAll(ctx, selector)
	if err != nil {
		return 0, err
	}
	defer release(ctx, els)

	hidden := 0
	for _, el := range els {
		text, err := el.Text(ctx)
		if err != nil {
			s.logger.Debug("overlay: read text", "tier", tier, "error", err)
			continue
		}
		if !containsAny(text, phrases) {
			continue
		}
		if s.hide(ctx, el, tier) {
			hidden++
		}
	}
	return hidden, nil
}

// scanText finds loose text nodes carrying a phrase and hides their
// nearest popup-like ancestor.
func (s *Suppressor) scanText(ctx context.Context, doc dom.Document) (int, error) {
	containers, err := doc.TextContainers(ctx, popupPhrases)
	if err != nil {
		return 0, err
	}
	defer release(ctx, containers)

	hidden := 0
	for _, start := range containers {
		if s.hideClosest(ctx, start) {
			hidden++
		}
	}
	return hidden, nil
}

// hideClosest walks up from start to the nearest popup-like ancestor and
// hides it. Ancestor handles acquired on the way are released.
func (s *Suppressor) hideClosest(ctx context.Context, start dom.Element) bool {
	var walked []dom.Element
	defer func() { release(ctx, walked) }()

	popup, ok := dom.Closest(start, MaxAncestorHops,
		func(el dom.Element) (dom.Element, bool) {
			p, ok, err := el.Parent(ctx)
			if err != nil || !ok {
				return nil, false
			}
			walked = append(walked, p)
			return p, true
		},
		func(el dom.Element) bool { return s.popupLike(ctx, el) },
	)
	return ok && s.hide(ctx, popup, 3)
}

func (s *Suppressor) popupLike(ctx context.Context, el dom.Element) bool {
	pos, err := el.Position(ctx)
	if err == nil && (pos == "absolute" || pos == "fixed") {
		return true
	}
	role, ok, err := el.Attr(ctx, "role")
	return err == nil && ok && popupRoles[role]
}

// hide marks el unless it already carries the marker class. It reports
// whether el was newly hidden.
func (s *Suppressor) hide(ctx context.Context, el dom.Element, tier int) bool {
	marked, err := el.HasClass(ctx, s.marker.Class)
	if err != nil {
		s.logger.Debug("overlay: read class", "tier", tier, "error", err)
		return false
	}
	if marked {
		return false
	}
	if err := el.Hide(ctx, s.marker); err != nil {
		s.logger.Debug("overlay: hide", "tier", tier, "error", err)
		return false
	}
	s.logger.Info("overlay: popup hidden", "tier", tier)
	if s.onHidden != nil {
		s.onHidden(tier)
	}
	return true
}

func release(ctx context.Context, els []dom.Element) {
	for _, el := range els {
		el.Release(ctx)
	}
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
