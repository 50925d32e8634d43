package testutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// ParseHTML parses a page or htmx fragment body for selector assertions.
func ParseHTML(t testing.TB, body []byte) *goquery.Document {
	t.Helper()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	require.NoError(t, err, "parse html")
	return doc
}

// Attrs collects the named attribute from every node in sel, in document
// order. Nodes without the attribute contribute an empty string.
func Attrs(sel *goquery.Selection, name string) []string {
	return sel.Map(func(_ int, s *goquery.Selection) string {
		return s.AttrOr(name, "")
	})
}

// Texts collects the trimmed text of every node in sel, in document order.
func Texts(sel *goquery.Selection) []string {
	return sel.Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})
}
