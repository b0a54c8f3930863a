// Package storefront talks to the storefront that renders product markup:
// fragment URL construction, the Fetcher capability and the product JSON
// source.
package storefront

import (
	"net/url"
	"strings"

	"golang.org/x/mod/semver"

	"variant-sync/internal/variant"
)

// OptionValuesSince is the first theme version whose section renderer
// understands the option_values parameter.
const OptionValuesSince = "v13.0.0"

// SupportsOptionValues reports whether a theme version accepts
// option_values. Empty or unparseable versions are treated as current.
func SupportsOptionValues(themeVersion string) bool {
	v := canonical(themeVersion)
	if v == "" {
		return true
	}
	return semver.Compare(v, OptionValuesSince) >= 0
}

func canonical(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return ""
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return ""
	}
	return semver.Canonical(version)
}

// Request describes one fragment fetch.
type Request struct {
	ProductURL   string
	SectionID    string
	OptionValues []string
	FullPage     bool
	VariantID    variant.ID
	ThemeVersion string
}

// URL renders the request as `{product}?variant=..&section_id=..&option_values=..`.
// section_id is omitted in full-page mode; variant only when known. Values
// are query-escaped; the commas separating option values are not.
func (r Request) URL() string {
	u := r.ProductURL
	if r.VariantID != "" {
		u = appendQuery(u, "variant="+url.QueryEscape(r.VariantID.String()))
	}

	var params []string
	if !r.FullPage {
		params = append(params, "section_id="+url.QueryEscape(r.SectionID))
	}
	if len(r.OptionValues) > 0 && SupportsOptionValues(r.ThemeVersion) {
		values := make([]string, len(r.OptionValues))
		for i, v := range r.OptionValues {
			values[i] = url.QueryEscape(v)
		}
		params = append(params, "option_values="+strings.Join(values, ","))
	}
	if len(params) > 0 {
		u = appendQuery(u, strings.Join(params, "&"))
	}
	return u
}

// QuantityRulesURL is the section request used to refresh quantity rules
// after a cart update.
func QuantityRulesURL(productURL string, id variant.ID, sectionID string) string {
	return appendQuery(productURL, "variant="+url.QueryEscape(id.String())+"&section_id="+url.QueryEscape(sectionID))
}

// VariantURL is the visible page address for a variant.
func VariantURL(productURL string, id variant.ID) string {
	if id == "" {
		return productURL
	}
	return productURL + "?variant=" + url.QueryEscape(id.String())
}

// ShareURL is the absolute address handed to the share button.
func ShareURL(shopURL, productURL string, id variant.ID) string {
	return strings.TrimSuffix(shopURL, "/") + VariantURL(productURL, id)
}

// ProductJSONURL returns the `.js` endpoint of a product page URL.
func ProductJSONURL(productURL string) string {
	if i := strings.IndexAny(productURL, "?#"); i >= 0 {
		productURL = productURL[:i]
	}
	return strings.TrimSuffix(productURL, "/") + ".js"
}

func appendQuery(u, query string) string {
	if strings.Contains(u, "?") {
		return u + "&" + query
	}
	return u + "?" + query
}
