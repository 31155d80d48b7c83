package overlay

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/hazyhaar/horosmeet/dom"
	"github.com/hazyhaar/horosmeet/dom/htmldoc"
)

func parse(t *testing.T, s string) *htmldoc.Document {
	t.Helper()
	d, err := htmldoc.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func render(t *testing.T, d *htmldoc.Document) string {
	t.Helper()
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.String()
}

func isHidden(t *testing.T, d *htmldoc.Document, selector string) bool {
	t.Helper()
	ctx := context.Background()
	el, ok, err := d.Query(ctx, selector)
	if err != nil || !ok {
		t.Fatalf("query %s: ok=%v err=%v", selector, ok, err)
	}
	marked, _ := el.HasClass(ctx, dom.DefaultMarker.Class)
	aria, _, _ := el.Attr(ctx, "aria-hidden")
	return marked && aria == "true"
}

func TestScan_RoleDialog(t *testing.T) {
	d := parse(t, `<body><div role="dialog">Microphone muted by system</div></body>`)

	n, err := New(Config{}).Scan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("hidden = %d, want 1", n)
	}
	if !isHidden(t, d, `div[role="dialog"]`) {
		t.Error("dialog not marked hidden")
	}
}

func TestScan_RoleDialogSoundSettings(t *testing.T) {
	d := parse(t, `<body><div role="alertdialog"><button>Open Sound Settings</button></div></body>`)

	if _, err := New(Config{}).Scan(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if !isHidden(t, d, `[role="alertdialog"]`) {
		t.Error("alertdialog not marked hidden")
	}
}

func TestScan_ClassTier(t *testing.T) {
	d := parse(t, `<body>
		<div class="TZFSLb" id="p">Your microphone is muted by system settings</div>
		<div class="P9KVBf" id="q">Open Sound Settings</div>
	</body>`)

	if _, err := New(Config{}).Scan(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if !isHidden(t, d, "#p") {
		t.Error("#p not hidden")
	}
	// Tier 2 does not accept the settings phrase on its own.
	if isHidden(t, d, "#q") {
		t.Error("#q hidden without a popup phrase")
	}
}

func TestScan_TextFallbackFixedAncestor(t *testing.T) {
	d := parse(t, `<body>
		<div id="wrap">
			<div id="popup" style="position: fixed; bottom: 0">
				<div><span>Microphone muted by system</span></div>
			</div>
		</div>
	</body>`)

	var tiers []int
	s := New(Config{OnHidden: func(tier int) { tiers = append(tiers, tier) }})
	n, err := s.Scan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(tiers) != 1 || tiers[0] != 3 {
		t.Fatalf("hidden=%d tiers=%v, want one tier-3 hide", n, tiers)
	}
	if !isHidden(t, d, "#popup") {
		t.Error("#popup not hidden")
	}
	if isHidden(t, d, "#wrap") {
		t.Error("#wrap should be untouched")
	}
}

func TestScan_TextFallbackOutOfReach(t *testing.T) {
	inner := "<span>muted by system</span>"
	for i := 0; i < 10; i++ {
		inner = "<div>" + inner + "</div>"
	}
	d := parse(t, `<body><div id="popup" style="position: absolute">`+inner+`</div></body>`)

	n, err := New(Config{}).Scan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("hidden = %d, want 0 (container beyond 10 hops)", n)
	}
}

func TestScan_Idempotent(t *testing.T) {
	d := parse(t, `<body>
		<div role="alert" class="TZFSLb" style="position: fixed">Microphone muted by system</div>
	</body>`)
	s := New(Config{})
	ctx := context.Background()

	n, err := s.Scan(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("first scan hid %d, want 1 (all tiers hit the same element)", n)
	}
	first := render(t, d)

	n, err = s.Scan(ctx, d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("second scan hid %d, want 0", n)
	}
	second := render(t, d)
	if first != second {
		t.Errorf("second scan mutated the document:\n%s\n---\n%s", first, second)
	}
	if c := strings.Count(second, dom.DefaultMarker.Class); c != 1 {
		t.Errorf("marker class appears %d times, want 1", c)
	}
}

func TestScan_Monotonic(t *testing.T) {
	d := parse(t, `<body><div role="dialog" id="d">Microphone muted by system</div></body>`)
	s := New(Config{})
	ctx := context.Background()

	if _, err := s.Scan(ctx, d); err != nil {
		t.Fatal(err)
	}

	el, _, _ := d.Query(ctx, "#d")
	el.(*htmldoc.Element).SetText("Something else entirely")

	if _, err := s.Scan(ctx, d); err != nil {
		t.Fatal(err)
	}
	if !isHidden(t, d, "#d") {
		t.Error("element became visible after its text changed")
	}
}

func TestScan_NoOpOnAbsence(t *testing.T) {
	d := parse(t, `<body><div role="dialog">Welcome</div><p style="position: fixed">hello</p></body>`)
	before := render(t, d)

	n, err := New(Config{}).Scan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("hidden = %d, want 0", n)
	}
	if after := render(t, d); after != before {
		t.Errorf("document mutated:\n%s\n---\n%s", before, after)
	}
}

func TestScan_ReleasesHandles(t *testing.T) {
	d := parse(t, `<body>
<div role="dialog">Microphone muted by system</div>
<div role="alert">unrelated</div>
<div class="TZFSLb">muted by system</div>
<div style="position: fixed"><div><span>Microphone muted by system</span></div></div>
<div><div><div><div><div><div><div><div><div><div><div><p>muted by system</p></div></div></div></div></div></div></div></div></div></div></div>
</body>`)
	ctx := context.Background()
	s := New(Config{})

	for i := 0; i < 2; i++ {
		if _, err := s.Scan(ctx, d); err != nil {
			t.Fatal(err)
		}
		if live := d.Live(); live != 0 {
			t.Fatalf("scan %d left %d element handles unreleased", i, live)
		}
	}
}

func TestScanText_RoleOnlyAncestor(t *testing.T) {
	d := parse(t, `<body><section role="alert"><div><p>Microphone muted by system</p></div></section></body>`)
	var tiers []int
	s := New(Config{OnHidden: func(tier int) { tiers = append(tiers, tier) }})

	n, err := s.scanText(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(tiers) != 1 || tiers[0] != 3 {
		t.Fatalf("hidden = %d, tiers = %v; want 1 at tier 3", n, tiers)
	}
	if !isHidden(t, d, "section") {
		t.Error("role-only ancestor not hidden")
	}
	if isHidden(t, d, "div") || isHidden(t, d, "p") {
		t.Error("a non-popup descendant was hidden")
	}
}

func TestPopupLike(t *testing.T) {
	d := parse(t, `<body>
<section id="alertdialog" role="alertdialog">a</section>
<section id="alert" role="alert">b</section>
<section id="region" role="region">c</section>
<section id="absolute" style="position: absolute">d</section>
<section id="plain">e</section>
</body>`)
	ctx := context.Background()
	s := New(Config{})

	cases := map[string]bool{
		"alertdialog": true,
		"alert":       true,
		"region":      false,
		"absolute":    true,
		"plain":       false,
	}
	for id, want := range cases {
		el, ok, err := d.Query(ctx, "#"+id)
		if err != nil || !ok {
			t.Fatalf("query #%s: %v %v", id, ok, err)
		}
		if got := s.popupLike(ctx, el); got != want {
			t.Errorf("popupLike(#%s) = %v, want %v", id, got, want)
		}
	}
}
