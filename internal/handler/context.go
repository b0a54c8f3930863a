package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"

	"variant-sync/internal/session"
)

// StorefrontContextHeader carries the block settings a theme would put on
// its product-info element, as an RFC 8941 dictionary:
//
//	Storefront-Context: section="main", update-url=?1, force-refetch=?0, theme-version="v15.1.0"
const StorefrontContextHeader = "Storefront-Context"

// StorefrontContext is the parsed Storefront-Context header.
type StorefrontContext struct {
	Section      string
	UpdateURL    *bool
	ForceRefetch bool
	ThemeVersion string
}

// ParseStorefrontContext parses a Storefront-Context header value. Unknown
// keys are ignored; an empty header yields the zero value.
func ParseStorefrontContext(header string) (StorefrontContext, error) {
	var sc StorefrontContext

	header = strings.TrimSpace(header)
	if header == "" {
		return sc, nil
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return sc, fmt.Errorf("invalid %s header: %w", StorefrontContextHeader, err)
	}

	if sc.Section, err = stringMember(dict, "section"); err != nil {
		return sc, err
	}
	if sc.ThemeVersion, err = stringMember(dict, "theme-version"); err != nil {
		return sc, err
	}
	update, ok, err := boolMember(dict, "update-url")
	if err != nil {
		return sc, err
	}
	if ok {
		sc.UpdateURL = &update
	}
	if sc.ForceRefetch, _, err = boolMember(dict, "force-refetch"); err != nil {
		return sc, err
	}
	return sc, nil
}

// Apply fills the request's unset fields from the header.
func (sc StorefrontContext) Apply(req *session.OpenRequest) {
	if req.SectionID == "" {
		req.SectionID = sc.Section
	}
	if req.UpdateURL == "" && sc.UpdateURL != nil {
		req.UpdateURL = fmt.Sprint(*sc.UpdateURL)
	}
	if sc.ForceRefetch {
		req.ForceRefetch = true
	}
	if req.ThemeVersion == "" {
		req.ThemeVersion = sc.ThemeVersion
	}
}

func item(dict *httpsfv.Dictionary, key string) (httpsfv.Item, bool, error) {
	member, ok := dict.Get(key)
	if !ok {
		return httpsfv.Item{}, false, nil
	}
	it, ok := member.(httpsfv.Item)
	if !ok {
		return httpsfv.Item{}, false, fmt.Errorf("%s value must be an item", key)
	}
	return it, true, nil
}

func stringMember(dict *httpsfv.Dictionary, key string) (string, error) {
	it, ok, err := item(dict, key)
	if err != nil || !ok {
		return "", err
	}
	s, ok := it.Value.(string)
	if !ok {
		return "", errors.New(key + " value must be a string")
	}
	return s, nil
}

func boolMember(dict *httpsfv.Dictionary, key string) (bool, bool, error) {
	it, ok, err := item(dict, key)
	if err != nil || !ok {
		return false, false, err
	}
	b, ok := it.Value.(bool)
	if !ok {
		return false, false, errors.New(key + " value must be a boolean")
	}
	return b, true, nil
}
