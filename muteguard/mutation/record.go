// Package mutation defines the DOM change records muteguard classifies.
// Records are produced from CDP DOM events by the page observer; they are
// plain values so classification can be tested without a browser.
package mutation

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert   Op = "insert"    // childNodeInserted
	OpRemove   Op = "remove"    // childNodeRemoved
	OpAttr     Op = "attr"      // attributeModified
	OpAttrDel  Op = "attr_del"  // attributeRemoved
	OpDocReset Op = "doc_reset" // documentUpdated: entire DOM replaced
)

// Record is a single DOM mutation.
type Record struct {
	Op       Op     `json:"op"`
	NodeID   int    `json:"node_id,omitempty"`
	NodeType int    `json:"node_type,omitempty"` // 1=element, 3=text, 8=comment
	Tag      string `json:"tag,omitempty"`
	Name     string `json:"name,omitempty"`  // attribute name for attr/attr_del
	Value    string `json:"value,omitempty"` // new attribute value
	// Attrs is the target element's attributes after the change, for
	// attr and attr_del records.
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Batch is the set of records drained together from the event stream.
type Batch []Record
