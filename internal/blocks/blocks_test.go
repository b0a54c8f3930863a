package blocks

import (
	"strings"
	"testing"
	"time"

	"variant-sync/internal/dom"
)

func TestApplyDeliveryEstimates(t *testing.T) {
	doc, err := dom.ParseString(`
		<div class="delivery-info" id="delivery-info-b1"><strong>Ships in 3 days</strong></div>
		<span id="delivery-date-b1"></span>
		<div class="delivery-info" id="delivery-info-b2"><strong>Soon</strong></div>
		<span id="delivery-date-b2"></span>`)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}

	today := time.Date(2026, time.December, 30, 12, 0, 0, 0, time.UTC)
	got, err := ApplyDeliveryEstimates(doc, today)
	if err == nil || !strings.Contains(err.Error(), "b2") {
		t.Errorf("error = %v, want report for b2", err)
	}
	if len(got) != 1 {
		t.Fatalf("estimates = %+v, want 1", got)
	}
	if got[0].Label != "Jan 2" || got[0].Days != 3 {
		t.Errorf("estimate = %+v, want Jan 2 after 3 days", got[0])
	}
	if text := dom.Text(dom.ByID(doc, "delivery-date-b1")); text != "Jan 2" {
		t.Errorf("delivery-date-b1 = %q", text)
	}
}

func TestToggleStar(t *testing.T) {
	doc, _ := dom.ParseString(`<div class="rated-excellent-stars"><i style="font-size: 12px"></i><i></i></div>`)
	stars := Stars(doc)
	if len(stars) != 2 {
		t.Fatalf("len(Stars()) = %d, want 2", len(stars))
	}

	if got := ToggleStar(stars[0]); got != StarActive {
		t.Errorf("first toggle = %q, want active", got)
	}
	if got := ToggleStar(stars[0]); got != StarInactive {
		t.Errorf("second toggle = %q, want #ccc", got)
	}
	if got := ToggleStar(stars[0]); got != StarActive {
		t.Errorf("third toggle = %q, want active", got)
	}
	if style := dom.AttrOr(stars[0], "style", ""); !strings.Contains(style, "font-size: 12px") {
		t.Errorf("style = %q, other declarations must survive", style)
	}
}
