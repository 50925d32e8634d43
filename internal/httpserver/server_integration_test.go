package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"finitefield.org/storefront/internal/cart"
	"finitefield.org/storefront/internal/catalog"
	"finitefield.org/storefront/internal/testutil"
)

type sourceFunc func(ctx context.Context) (*catalog.Catalog, error)

func (f sourceFunc) Load(ctx context.Context) (*catalog.Catalog, error) { return f(ctx) }

func jsonCatalog(body string) catalog.Source {
	return catalog.FSSource{FS: fstest.MapFS{"stock.json": {Data: []byte(body)}}, Path: "stock.json"}
}

const singleProduct = `[{"id":1,"img":"a.png","precio":10,"descripcion":"A"}]`

// browser drives the storefront the way one browser tab would.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
	lang   string
}

func newBrowser(t *testing.T, base string) *browser {
	return &browser{t: t, base: base, client: testutil.NewClient(t)}
}

func (b *browser) do(req *http.Request) (*http.Response, []byte) {
	b.t.Helper()
	if b.lang != "" {
		req.Header.Set("Accept-Language", b.lang)
	}
	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(b.t, err)
	return resp, body
}

type loadedPage struct {
	id   string
	csrf string
	doc  *goquery.Document
}

// open loads the shell page and returns its page id and CSRF token.
func (b *browser) open() loadedPage {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+"/", nil)
	require.NoError(b.t, err)
	resp, body := b.do(req)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)

	doc := testutil.ParseHTML(b.t, body)
	hxGet, ok := doc.Find(".box-container").Attr("hx-get")
	require.True(b.t, ok, "card container should fetch the catalog")
	u, err := url.Parse(hxGet)
	require.NoError(b.t, err)
	require.Equal(b.t, "/catalog", u.Path)

	var headers map[string]string
	rawHeaders, _ := doc.Find("body").Attr("hx-headers")
	require.NoError(b.t, json.Unmarshal([]byte(rawHeaders), &headers))

	return loadedPage{id: u.Query().Get("page"), csrf: headers["X-CSRF-Token"], doc: doc}
}

func (b *browser) catalog(p loadedPage) (*http.Response, *goquery.Document) {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+"/catalog?page="+url.QueryEscape(p.id), nil)
	require.NoError(b.t, err)
	req.Header.Set("HX-Request", "true")
	resp, body := b.do(req)
	return resp, testutil.ParseHTML(b.t, body)
}

func (b *browser) add(p loadedPage, productID string) (*http.Response, []byte) {
	b.t.Helper()
	form := url.Values{"page": {p.id}, "product_id": {productID}}
	req, err := http.NewRequest(http.MethodPost, b.base+"/cart/items", strings.NewReader(form.Encode()))
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	req.Header.Set("X-CSRF-Token", p.csrf)
	return b.do(req)
}

func (b *browser) cartPage() *goquery.Document {
	b.t.Helper()
	req, err := http.NewRequest(http.MethodGet, b.base+"/cart", nil)
	require.NoError(b.t, err)
	resp, body := b.do(req)
	require.Equal(b.t, http.StatusOK, resp.StatusCode)
	return testutil.ParseHTML(b.t, body)
}

func counterText(t *testing.T, body []byte) string {
	t.Helper()
	return strings.TrimSpace(testutil.ParseHTML(t, body).Find("#carrito").Text())
}

func TestHealthzOK(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", strings.TrimSpace(string(body)))
}

func TestHomeRendersShellWithZeroCounter(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	page := newBrowser(t, ts.URL).open()

	require.NotEmpty(t, page.id)
	require.NotEmpty(t, page.csrf)
	require.Equal(t, "0", strings.TrimSpace(page.doc.Find("#carrito").Text()))
	require.Zero(t, page.doc.Find(".box.card").Length(), "cards arrive with the catalog fragment")
	require.Equal(t, 1, page.doc.Find("#toasts").Length())
}

func TestCatalogRendersCardsInResponseOrder(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(`[
		{"id":3,"img":"c.png","precio":30,"descripcion":"C"},
		{"id":1,"img":"a.png","precio":10,"descripcion":"A"},
		{"id":2,"img":"b.png","precio":20.5,"descripcion":"B"}
	]`)))
	b := newBrowser(t, ts.URL)
	resp, doc := b.catalog(b.open())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	container := doc.Find(".box-container")
	require.Equal(t, "ready", container.AttrOr("data-catalog-state", ""))

	cards := doc.Find(".box.card")
	require.Equal(t, 3, cards.Length())

	require.Equal(t, []string{"3", "1", "2"}, testutil.Attrs(cards, "data-product-id"))
	require.Equal(t, []string{"$ 30", "$ 10", "$ 20.5"}, testutil.Texts(cards.Find(".price")))

	first := cards.First()
	require.Equal(t, "c.png", first.Find("img.card-img-top").AttrOr("src", ""))
	require.Equal(t, "C", strings.TrimSpace(first.Find(".card-text").Text()))
	btn := first.Find(".cart-btn")
	require.Equal(t, "3", btn.AttrOr("data-product-id", ""))
	require.Equal(t, "Agregar al carrito", strings.TrimSpace(btn.Text()))
}

func TestCatalogLocalizedAddLabel(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	b.lang = "en"
	_, doc := b.catalog(b.open())
	require.Equal(t, "Add to cart", strings.TrimSpace(doc.Find(".cart-btn").Text()))
}

func TestEmptyCatalogRendersNoCards(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(`[]`)))
	b := newBrowser(t, ts.URL)
	page := b.open()
	resp, doc := b.catalog(page)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Zero(t, doc.Find(".box.card").Length())
	require.Equal(t, "empty", doc.Find(".box-container").AttrOr("data-catalog-state", ""))
	require.Equal(t, "0", strings.TrimSpace(page.doc.Find("#carrito").Text()))
}

func TestCatalogFailureRendersErrorState(t *testing.T) {
	t.Parallel()

	cases := map[string]catalog.Source{
		"unavailable": sourceFunc(func(context.Context) (*catalog.Catalog, error) {
			return nil, errors.New("network down")
		}),
		"malformed": jsonCatalog(`{"not":"a list"}`),
	}
	for name, src := range cases {
		src := src
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ts := testutil.NewServer(t, testutil.WithCatalog(src))
			b := newBrowser(t, ts.URL)
			resp, doc := b.catalog(b.open())

			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Zero(t, doc.Find(".box.card").Length())
			require.Equal(t, "error", doc.Find(".box-container").AttrOr("data-catalog-state", ""))
			require.Equal(t, 1, doc.Find(".catalog-error").Length())
		})
	}
}

func TestCatalogFragmentRequiresHTMX(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, err := http.Get(ts.URL + "/catalog?page=anything")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDescriptionsAreSanitized(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(
		`[{"id":1,"img":"a.png","precio":10,"descripcion":"Remera <script>alert(1)</script> **nueva**"}]`,
	)))
	b := newBrowser(t, ts.URL)
	_, doc := b.catalog(b.open())

	text := doc.Find(".card-text")
	require.Zero(t, text.Find("script").Length())
	require.Equal(t, 1, text.Find("strong").Length())
}

func TestSingleAddScenario(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)

	resp, body := b.add(page, "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", counterText(t, body))

	var trigger map[string]map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("HX-Trigger")), &trigger))
	added, ok := trigger["cart:added"]
	require.True(t, ok)
	require.Equal(t, "El producto se agregó al carrito", added["message"])
	require.EqualValues(t, 1500, added["timeout"])

	toast := testutil.ParseHTML(t, body).Find("[data-toast]")
	require.Equal(t, 1, toast.Length())
	require.Equal(t, "1500", toast.AttrOr("data-timeout", ""))

	doc := b.cartPage()
	require.Equal(t, "1", strings.TrimSpace(doc.Find("[data-cart-size]").Text()))
	items := doc.Find(".cart-items li")
	require.Equal(t, 1, items.Length())
	require.Equal(t, "1", items.First().AttrOr("data-product-id", ""))
}

func TestCounterEqualsSuccessfulAdds(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(`[
		{"id":1,"img":"a.png","precio":10,"descripcion":"A"},
		{"id":2,"img":"b.png","precio":20,"descripcion":"B"}
	]`)))
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)

	clicks := []string{"1", "2", "1", "1", "2"}
	for i, id := range clicks {
		resp, body := b.add(page, id)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, strconv.Itoa(i+1), counterText(t, body))
	}
	require.Equal(t, strconv.Itoa(len(clicks)), strings.TrimSpace(b.cartPage().Find("[data-cart-size]").Text()))
}

func TestUnknownProductIsNoop(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)

	resp, body := b.add(page, "99")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	var envelope map[string]string
	require.NoError(t, json.Unmarshal(body, &envelope))
	require.Equal(t, "unknown product", envelope["error"])

	require.Equal(t, 1, b.cartPage().Find("[data-cart-state=empty]").Length())

	resp, body = b.add(page, "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", counterText(t, body), "rejected adds do not count")
}

func TestAddBeforeCatalogLoadedIsNoop(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	page := b.open()

	resp, _ := b.add(page, "1")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInvalidProductID(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)

	resp, _ := b.add(page, "uno")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReloadResetsCounterButKeepsCart(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	first := b.open()
	b.catalog(first)
	b.add(first, "1")
	_, body := b.add(first, "1")
	require.Equal(t, "2", counterText(t, body))

	reloaded := b.open()
	require.NotEqual(t, first.id, reloaded.id)
	require.Equal(t, "0", strings.TrimSpace(reloaded.doc.Find("#carrito").Text()))
	require.Equal(t, "2", strings.TrimSpace(b.cartPage().Find("[data-cart-size]").Text()))

	b.catalog(reloaded)
	_, body = b.add(reloaded, "1")
	require.Equal(t, "1", counterText(t, body))
}

func TestCartsAreScopedPerVisitor(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	alice := newBrowser(t, ts.URL)
	page := alice.open()
	alice.catalog(page)
	alice.add(page, "1")

	bob := newBrowser(t, ts.URL)
	require.Equal(t, 1, bob.cartPage().Find("[data-cart-state=empty]").Length())
}

func TestPageBelongsToItsVisitor(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	alice := newBrowser(t, ts.URL)
	page := alice.open()
	alice.catalog(page)

	mallory := newBrowser(t, ts.URL)
	own := mallory.open()
	stolen := loadedPage{id: page.id, csrf: own.csrf}

	resp, _ := mallory.add(stolen, "1")
	require.Equal(t, http.StatusGone, resp.StatusCode)
	resp, _ = mallory.catalog(stolen)
	require.Equal(t, http.StatusGone, resp.StatusCode)

	_, body := alice.add(page, "1")
	require.Equal(t, "1", counterText(t, body), "other visitors cannot bump this page's counter")
}

func TestStorageFailureStillCountsAdd(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t,
		testutil.WithCatalog(jsonCatalog(singleProduct)),
		testutil.WithCartStore(brokenStore{}),
	)
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)

	resp, body := b.add(page, "1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "1", counterText(t, body))
	require.Contains(t, resp.Header.Get("HX-Trigger"), "cart:warning")
	require.Equal(t, 1, testutil.ParseHTML(t, body).Find(".toast-warning").Length())

	require.Equal(t, 1, b.cartPage().Find("[data-cart-state=error]").Length())
}

func TestExpiredPageIsGone(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := newBrowser(t, ts.URL)
	page := b.open()
	page.id = "not-a-page"

	resp, _ := b.add(page, "1")
	require.Equal(t, http.StatusGone, resp.StatusCode)

	resp, _ = b.catalog(page)
	require.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestAddRequiresCSRFToken(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)
	page.csrf = "forged"

	resp, _ := b.add(page, "1")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestMetricsExposeCartAdds(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t, testutil.WithCatalog(jsonCatalog(singleProduct)))
	b := newBrowser(t, ts.URL)
	page := b.open()
	b.catalog(page)
	b.add(page, "1")
	b.add(page, "7")

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `storefront_cart_adds_total{result="added"} 1`)
	require.Contains(t, string(body), `storefront_cart_adds_total{result="unknown_product"} 1`)
	require.Contains(t, string(body), `storefront_catalog_loads_total{result="ok"} 1`)
}

func TestAssetsServed(t *testing.T) {
	t.Parallel()

	ts := testutil.NewServer(t)
	resp, err := http.Get(ts.URL + "/assets/app.js")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("ETag"))
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string, string) ([]byte, bool, error) {
	return nil, false, errors.New("storage unavailable")
}

func (brokenStore) Update(context.Context, string, string, func([]byte, bool) ([]byte, error)) error {
	return errors.New("quota exceeded")
}

func (brokenStore) Close() error { return nil }

var _ cart.Store = brokenStore{}
