// Package blocks implements the theme's small cosmetic blocks: estimated
// delivery dates and the review star toggle.
package blocks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"variant-sync/internal/dom"
)

// DeliveryDateLayout renders dates like "Jan 2".
const DeliveryDateLayout = "Jan 2"

var daysPattern = regexp.MustCompile(`\d+`)

// Estimate is one rendered delivery date.
type Estimate struct {
	BlockID string    `json:"block_id"`
	Days    int       `json:"days"`
	Date    time.Time `json:"date"`
	Label   string    `json:"label"`
}

// ApplyDeliveryEstimates fills every `#delivery-date-{id}` with today plus
// the number of days stated in the matching `.delivery-info` block's
// <strong>. Blocks without a number or a date target are skipped and
// reported in the returned error.
func ApplyDeliveryEstimates(doc *html.Node, today time.Time) ([]Estimate, error) {
	var (
		out  []Estimate
		errs []string
	)
	for _, info := range dom.All(doc, ".//*["+dom.HasClassExpr("delivery-info")+"]") {
		blockID := strings.TrimPrefix(dom.AttrOr(info, "id", ""), "delivery-info-")

		match := daysPattern.FindString(dom.Text(dom.One(info, ".//strong")))
		if match == "" {
			errs = append(errs, fmt.Sprintf("%s: no day count", blockID))
			continue
		}
		days, err := strconv.Atoi(match)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", blockID, err))
			continue
		}

		target := dom.ByID(doc, "delivery-date-"+blockID)
		if target == nil {
			errs = append(errs, fmt.Sprintf("%s: no date element", blockID))
			continue
		}

		date := today.AddDate(0, 0, days)
		label := date.Format(DeliveryDateLayout)
		dom.SetText(target, label)
		out = append(out, Estimate{BlockID: blockID, Days: days, Date: date, Label: label})
	}

	if len(errs) > 0 {
		return out, fmt.Errorf("delivery estimates: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

// Star colours.
const (
	StarActive   = "rgba(var(--color-button), var(--alpha-button-background))"
	StarInactive = "#ccc"
)

// Stars returns the review star icons in document order.
func Stars(doc *html.Node) []*html.Node {
	return dom.All(doc, ".//*["+dom.HasClassExpr("rated-excellent-stars")+"]//i")
}

// ToggleStar flips a star between the button colour and grey. A star with
// no colour yet becomes active. Returns the new colour.
func ToggleStar(star *html.Node) string {
	next := StarActive
	if StarColor(star) == StarActive {
		next = StarInactive
	}
	setStyle(star, "color", next)
	return next
}

// StarColor returns the star's inline colour.
func StarColor(star *html.Node) string {
	for _, decl := range strings.Split(dom.AttrOr(star, "style", ""), ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if ok && strings.TrimSpace(prop) == "color" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func setStyle(n *html.Node, prop, val string) {
	var decls []string
	for _, decl := range strings.Split(dom.AttrOr(n, "style", ""), ";") {
		p, _, ok := strings.Cut(decl, ":")
		if !ok || strings.TrimSpace(p) == prop {
			continue
		}
		decls = append(decls, strings.TrimSpace(decl))
	}
	decls = append(decls, prop+": "+val)
	dom.SetAttr(n, "style", strings.Join(decls, "; "))
}
