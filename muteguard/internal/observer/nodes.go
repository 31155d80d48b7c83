// CLAUDE:SUMMARY Tracks CDP node IDs to parent, tag and attributes so attribute events can be attributed to the control element.
package observer

import (
	"strings"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// nodeMap mirrors the part of the DOM tree CDP has pushed to us.
type nodeMap struct {
	mu     sync.RWMutex
	parent map[proto.DOMNodeID]proto.DOMNodeID
	tags   map[proto.DOMNodeID]string
	attrs  map[proto.DOMNodeID]map[string]string
	kids   map[proto.DOMNodeID][]proto.DOMNodeID
	body   proto.DOMNodeID
}

func newNodeMap() *nodeMap {
	nm := &nodeMap{}
	nm.reset()
	return nm
}

func (nm *nodeMap) reset() {
	nm.parent = make(map[proto.DOMNodeID]proto.DOMNodeID)
	nm.tags = make(map[proto.DOMNodeID]string)
	nm.attrs = make(map[proto.DOMNodeID]map[string]string)
	nm.kids = make(map[proto.DOMNodeID][]proto.DOMNodeID)
	nm.body = 0
}

// buildFromDocument replaces the map with the tree under root.
func (nm *nodeMap) buildFromDocument(root *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.reset()
	nm.walkNode(root)
}

func (nm *nodeMap) walkNode(node *proto.DOMNode) {
	if node == nil {
		return
	}

	tag := strings.ToLower(node.NodeName)
	nm.tags[node.NodeID] = tag
	if node.NodeType == 1 {
		nm.attrs[node.NodeID] = attrMap(node.Attributes)
		if tag == "body" && nm.body == 0 {
			nm.body = node.NodeID
		}
	}

	for _, child := range node.Children {
		nm.link(node.NodeID, child.NodeID)
		nm.walkNode(child)
	}
	for _, sr := range node.ShadowRoots {
		nm.link(node.NodeID, sr.NodeID)
		nm.walkNode(sr)
	}
}

func (nm *nodeMap) link(parent, child proto.DOMNodeID) {
	nm.parent[child] = parent
	nm.kids[parent] = append(nm.kids[parent], child)
}

// setChildren handles DOM.setChildNodes: the children of parent arrive
// after a request or a push.
func (nm *nodeMap) setChildren(parent proto.DOMNodeID, nodes []*proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	old := append([]proto.DOMNodeID(nil), nm.kids[parent]...)
	for _, id := range old {
		nm.removeLocked(id)
	}
	delete(nm.kids, parent)
	for _, n := range nodes {
		nm.link(parent, n.NodeID)
		nm.walkNode(n)
	}
}

// addNode registers a node inserted under parent.
func (nm *nodeMap) addNode(parent proto.DOMNodeID, node *proto.DOMNode) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.link(parent, node.NodeID)
	nm.walkNode(node)
}

func (nm *nodeMap) removeNode(id proto.DOMNodeID) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.removeLocked(id)
}

func (nm *nodeMap) removeLocked(id proto.DOMNodeID) {
	kids := append([]proto.DOMNodeID(nil), nm.kids[id]...)
	for _, child := range kids {
		nm.removeLocked(child)
	}
	if p, ok := nm.parent[id]; ok {
		siblings := nm.kids[p]
		for i, k := range siblings {
			if k == id {
				nm.kids[p] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	if nm.body == id {
		nm.body = 0
	}
	delete(nm.parent, id)
	delete(nm.tags, id)
	delete(nm.attrs, id)
	delete(nm.kids, id)
}

func (nm *nodeMap) setAttr(id proto.DOMNodeID, name, value string) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	a, ok := nm.attrs[id]
	if !ok {
		a = make(map[string]string)
		nm.attrs[id] = a
	}
	a[name] = value
}

func (nm *nodeMap) delAttr(id proto.DOMNodeID, name string) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	delete(nm.attrs[id], name)
}

// attrsOf returns a copy of the node's attributes.
func (nm *nodeMap) attrsOf(id proto.DOMNodeID) map[string]string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	src := nm.attrs[id]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (nm *nodeMap) size() int {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return len(nm.tags)
}

func (nm *nodeMap) tagOf(id proto.DOMNodeID) string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	return nm.tags[id]
}

// underBody reports whether id is body or one of its descendants.
func (nm *nodeMap) underBody(id proto.DOMNodeID) bool {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.body == 0 {
		return false
	}
	for hops := 0; hops < 4096; hops++ {
		if id == nm.body {
			return true
		}
		p, ok := nm.parent[id]
		if !ok {
			return false
		}
		id = p
	}
	return false
}

// attrMap converts CDP's flat [name, value, name, value...] list.
func attrMap(flat []string) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		m[flat[i]] = flat[i+1]
	}
	return m
}
