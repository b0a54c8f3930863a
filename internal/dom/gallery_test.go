package dom

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const liveGallery = `<media-gallery><ul id="live">
<li data-media-id="s-A">A</li>
<li data-media-id="s-B">B</li>
<li data-media-id="s-C">C</li>
</ul></media-gallery>`

const fetchedGallery = `<media-gallery><ul id="fetched">
<li data-media-id="s-C">C2</li>
<li data-media-id="s-A">A2</li>
<li data-media-id="s-D">D2</li>
</ul></media-gallery>`

func TestReconcileGallery(t *testing.T) {
	live, _ := ParseString(liveGallery)
	fetched, _ := ParseString(fetchedGallery)
	list := ByID(live, "live")
	origA := One(list, "./li[@data-media-id='s-A']")

	res, err := Reconcile(list, ByID(fetched, "fetched"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	if diff := cmp.Diff([]string{"s-C", "s-A", "s-D"}, NewGallery(list).Keys()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	removed, inserted, moved := res.Counts()
	if removed != 1 || inserted != 1 || moved != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", removed, inserted, moved)
	}

	// Surviving nodes are kept, not replaced.
	if got := One(list, "./li[@data-media-id='s-A']"); got != origA {
		t.Error("item A should be the original live node")
	}
	// New node adopted from the fetched document.
	if Text(One(list, "./li[@data-media-id='s-D']")) != "D2" {
		t.Error("item D should come from the fetched document")
	}
	if One(ByID(fetched, "fetched"), "./li[@data-media-id='s-D']") != nil {
		t.Error("adopted item should be detached from the fetched document")
	}
}

func TestReconcileGallery_Identical(t *testing.T) {
	live, _ := ParseString(liveGallery)
	other, _ := ParseString(liveGallery)

	res, err := Reconcile(ByID(live, "live"), ByID(other, "live"))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if !res.IsEmpty() {
		t.Errorf("expected no ops, got %v", res.Ops)
	}
}

func TestReconcileGallery_EmptyLive(t *testing.T) {
	live, _ := ParseString(`<ul id="live"><li class="unkeyed">x</li></ul>`)
	fetched, _ := ParseString(fetchedGallery)
	list := ByID(live, "live")

	if _, err := Reconcile(list, ByID(fetched, "fetched")); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if diff := cmp.Diff([]string{"s-C", "s-A", "s-D"}, NewGallery(list).Keys()); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if One(list, "./li[@class='unkeyed']") == nil {
		t.Error("unkeyed child should be preserved")
	}
}

func TestGallery_RejectsStaleIndex(t *testing.T) {
	live, _ := ParseString(liveGallery)
	g := NewGallery(ByID(live, "live"))
	items := g.Items()

	if err := g.Remove(items[0], 1); err == nil {
		t.Error("Remove with wrong index should fail")
	}
	if err := g.Insert(items[0], 9); err == nil {
		t.Error("Insert out of range should fail")
	}
}
