// Package i18n holds the storefront's UI strings, one flat JSON dictionary
// per language, and negotiates the visitor's language.
package i18n

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

type dictionary map[string]string

// Bundle resolves message keys per language with a fallback language.
type Bundle struct {
	fallback string
	langs    []string
	dicts    map[string]dictionary
}

// Load reads <lang>.json from fsys for each supported language. A missing
// dictionary is tolerated for every language except the fallback.
func Load(fsys fs.FS, fallback string, supported []string) (*Bundle, error) {
	b := &Bundle{
		fallback: normalize(fallback),
		dicts:    make(map[string]dictionary),
	}
	if len(supported) == 0 {
		supported = []string{b.fallback}
	}
	for _, raw := range supported {
		lang := normalize(raw)
		if lang == "" || slices.Contains(b.langs, lang) {
			continue
		}
		b.langs = append(b.langs, lang)
		dict, err := readDictionary(fsys, lang)
		switch {
		case errors.Is(err, fs.ErrNotExist) && lang != b.fallback:
			continue
		case err != nil:
			return nil, err
		}
		b.dicts[lang] = dict
	}
	slices.Sort(b.langs)
	if _, ok := b.dicts[b.fallback]; !ok {
		return nil, fmt.Errorf("i18n: fallback language %q has no dictionary", b.fallback)
	}
	return b, nil
}

func readDictionary(fsys fs.FS, lang string) (dictionary, error) {
	raw, err := fs.ReadFile(fsys, lang+".json")
	if err != nil {
		return nil, fmt.Errorf("i18n: read %s: %w", lang, err)
	}
	var dict dictionary
	if err := json.Unmarshal(raw, &dict); err != nil {
		return nil, fmt.Errorf("i18n: decode %s: %w", lang, err)
	}
	return dict, nil
}

func normalize(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// Supported lists configured languages in sorted order.
func (b *Bundle) Supported() []string { return slices.Clone(b.langs) }

// Fallback returns the configured fallback language.
func (b *Bundle) Fallback() string { return b.fallback }

// IsSupported reports whether lang is configured.
func (b *Bundle) IsSupported(lang string) bool {
	_, found := slices.BinarySearch(b.langs, lang)
	return found
}

// T returns the text for key in lang, then in the fallback language, and
// finally the key itself.
func (b *Bundle) T(lang, key string) string {
	for _, l := range [2]string{lang, b.fallback} {
		if v, ok := b.dicts[l][key]; ok {
			return v
		}
	}
	return key
}

// Missing lists fallback keys that lang does not translate, sorted.
func (b *Bundle) Missing(lang string) []string {
	dict := b.dicts[lang]
	var missing []string
	for key := range b.dicts[b.fallback] {
		if _, ok := dict[key]; !ok {
			missing = append(missing, key)
		}
	}
	slices.Sort(missing)
	return missing
}

// Resolve chooses the best supported language from an Accept-Language
// header. Entries with q=0 never match.
func (b *Bundle) Resolve(acceptLang string) string {
	tags, weights, err := language.ParseAcceptLanguage(acceptLang)
	if err != nil {
		return b.fallback
	}
	for i, tag := range tags {
		if weights[i] <= 0 {
			continue
		}
		base, _ := tag.Base()
		if lang := base.String(); b.IsSupported(lang) {
			return lang
		}
	}
	return b.fallback
}
