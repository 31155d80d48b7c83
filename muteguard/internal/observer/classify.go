package observer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/horosmeet/muteguard/mutation"
)

// Class is a bit set of subsystems a batch of mutations may concern.
type Class uint8

const (
	// ClassOverlay: nodes were added, a new overlay may have appeared.
	ClassOverlay Class = 1 << iota
	// ClassControl: the watched attribute changed on the control element.
	ClassControl
)

// classes lists every class in dispatch order.
var classes = []Class{ClassOverlay, ClassControl}

func (c Class) String() string {
	switch c {
	case 0:
		return "none"
	case ClassOverlay:
		return "overlay"
	case ClassControl:
		return "control"
	case ClassOverlay | ClassControl:
		return "overlay|control"
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Rule says which attribute mutations concern the control element.
type Rule struct {
	WatchAttr string // attribute whose changes are watched
	IDAttr    string // stable identifying attribute of the control
	IDValue   string
}

// Classify reports which subsystems a batch concerns: any insertion may
// bring an overlay; an attribute record naming WatchAttr on an element
// whose IDAttr equals IDValue may be a state flip of the control.
func Classify(batch mutation.Batch, r Rule) Class {
	var c Class
	for _, rec := range batch {
		switch rec.Op {
		case mutation.OpInsert:
			c |= ClassOverlay
		case mutation.OpAttr, mutation.OpAttrDel:
			if rec.Name == r.WatchAttr && rec.Attrs[r.IDAttr] == r.IDValue {
				c |= ClassControl
			}
		}
	}
	return c
}

// Dispatch maps a class to the reaction it schedules.
type Dispatch map[Class]func(ctx context.Context)

// run calls the reaction of every class in due, once each, in dispatch
// order. A panicking reaction is logged and does not stop the others.
func (d Dispatch) run(ctx context.Context, due Class, logger *slog.Logger) {
	for _, c := range classes {
		if due&c == 0 {
			continue
		}
		fn := d[c]
		if fn == nil {
			continue
		}
		safeCall(ctx, c, fn, logger)
	}
}

func safeCall(ctx context.Context, c Class, fn func(context.Context), logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("observer: reaction panicked", "class", c, "panic", r)
		}
	}()
	fn(ctx)
}
