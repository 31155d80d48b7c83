package observer

import (
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/horosmeet/muteguard/mutation"
)

// cdpListener subscribes to CDP DOM events on the page and feeds records
// for nodes under <body> into the observer. Attribute events update the
// node map whatever their name, but only the watched attribute is
// forwarded.
type cdpListener struct {
	obs *Observer
}

func newCDPListener(obs *Observer) *cdpListener {
	return &cdpListener{obs: obs}
}

// start subscribes synchronously so no event between subscription and
// DOM.getDocument is lost, then waits on its own goroutine.
func (cl *cdpListener) start() {
	o := cl.obs
	wait := o.page.Context(o.ctx).EachEvent(
		func(e *proto.DOMSetChildNodes) {
			o.nodes.setChildren(e.ParentID, e.Nodes)
		},

		func(e *proto.DOMChildNodeInserted) {
			o.nodes.addNode(e.ParentNodeID, e.Node)
			if !o.nodes.underBody(e.Node.NodeID) {
				return
			}
			o.Feed(mutation.Record{
				Op:       mutation.OpInsert,
				NodeID:   int(e.Node.NodeID),
				NodeType: e.Node.NodeType,
				Tag:      o.nodes.tagOf(e.Node.NodeID),
			})
		},

		func(e *proto.DOMChildNodeRemoved) {
			inBody := o.nodes.underBody(e.NodeID)
			o.nodes.removeNode(e.NodeID)
			if inBody {
				o.Feed(mutation.Record{Op: mutation.OpRemove, NodeID: int(e.NodeID)})
			}
		},

		func(e *proto.DOMAttributeModified) {
			o.nodes.setAttr(e.NodeID, e.Name, e.Value)
			if e.Name != o.rule.WatchAttr || !o.nodes.underBody(e.NodeID) {
				return
			}
			o.Feed(mutation.Record{
				Op:     mutation.OpAttr,
				NodeID: int(e.NodeID),
				Tag:    o.nodes.tagOf(e.NodeID),
				Name:   e.Name,
				Value:  e.Value,
				Attrs:  o.nodes.attrsOf(e.NodeID),
			})
		},

		func(e *proto.DOMAttributeRemoved) {
			o.nodes.delAttr(e.NodeID, e.Name)
			if e.Name != o.rule.WatchAttr || !o.nodes.underBody(e.NodeID) {
				return
			}
			o.Feed(mutation.Record{
				Op:     mutation.OpAttrDel,
				NodeID: int(e.NodeID),
				Tag:    o.nodes.tagOf(e.NodeID),
				Name:   e.Name,
				Attrs:  o.nodes.attrsOf(e.NodeID),
			})
		},

		func(e *proto.DOMDocumentUpdated) {
			o.Feed(mutation.Record{Op: mutation.OpDocReset})
		},
	)

	go wait()
}
