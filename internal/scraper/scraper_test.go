package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imovel-monitor/internal/config"
	"imovel-monitor/internal/models"
)

// fakeFetcher serves canned bodies by URL
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	panics map[string]bool
	calls  []string
}

func (f *fakeFetcher) Get(_ context.Context, url string) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.panics[url] {
		panic("boom")
	}
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	body, ok := f.bodies[url]
	if !ok {
		return nil, &FetchError{URL: url, StatusCode: http.StatusNotFound}
	}
	return &Page{URL: url, StatusCode: http.StatusOK, Body: []byte(body)}, nil
}

const plazaPage = `<html><body>
<a href="/imovel/101/apto">
  <div class="chamadaimovel">Apto.</div>
  <div class="valorimovel">R$ 900,00</div>
</a>
<a href="/imovel/202/casa-efapi">
  <div class="chamadaimovel">Casa Efapi 3</div>
  <div class="valorimovel">R$ 1.500,00</div>
  <div class="caracteristicas">85m² 3 quartos 2 banheiros 1 vaga</div>
  <div class="enderecoimovel">Efapi - Chapecó</div>
</a>
</body></html>`

func plazaSite(origin string) config.SiteConfig {
	site := DefaultSites()[0]
	site.Origin = origin
	site.Pages = []config.PageConfig{{URL: origin + "/alugar", DealType: "RENT"}}
	return site
}

func TestSiteAdapterOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(plazaPage))
	}))
	defer srv.Close()

	adapter, err := NewSiteAdapter(plazaSite(srv.URL), NewHTTPFetcher(HTTPFetcherConfig{}))
	require.NoError(t, err)
	assert.Equal(t, "Plaza Chapecó", adapter.Name())

	records := adapter.FetchListings(context.Background(), nil)

	// the five-character title is below the gate, the twelve-character one passes
	require.Len(t, records, 1)
	assert.Equal(t, models.ListingRecord{
		Agency:        "Plaza Chapecó",
		ExternalCode:  "202",
		Title:         "Casa Efapi 3",
		PropertyType:  "Casa",
		Price:         "R$ 1.500,00",
		Area:          "85m²",
		Bedrooms:      "3",
		Bathrooms:     "2",
		ParkingSpaces: "1",
		Address:       "Efapi - Chapecó",
		Neighborhood:  "Efapi",
		DealType:      models.DealTypeRent,
		URL:           srv.URL + "/imovel/202/casa-efapi",
	}, records[0])
}

func TestSiteAdapterFallbackSelectors(t *testing.T) {
	page := `<div class="grid">
  <div class="card"><h3>Apartamento no Centro</h3><a href="detalhe?x=1">ver</a> <span>Cód. 4521</span> <span>R$ 350.000,00</span></div>
</div>`
	f := &fakeFetcher{bodies: map[string]string{"https://example.com/venda": page}}
	site := config.SiteConfig{
		Agency:        "Exemplo",
		Origin:        "https://example.com",
		Pages:         []config.PageConfig{{URL: "https://example.com/venda", DealType: "SALE"}},
		CardSelectors: []string{".listing-card", "div.card"},
	}

	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	records := adapter.FetchListings(context.Background(), nil)

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "4521", rec.ExternalCode)
	assert.Equal(t, "Apartamento no Centro", rec.Title)
	assert.Equal(t, "Apartamento", rec.PropertyType)
	assert.Equal(t, "R$ 350.000,00", rec.Price)
	assert.Equal(t, models.DealTypeSale, rec.DealType)
	assert.Equal(t, "https://example.com/detalhe?x=1", rec.URL)
}

func TestSiteAdapterNoCards(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{"https://example.com/a": "<p>nada</p>"}}
	site := config.SiteConfig{
		Agency:        "Exemplo",
		Origin:        "https://example.com",
		Pages:         []config.PageConfig{{URL: "https://example.com/a", DealType: "RENT"}},
		CardSelectors: []string{".card"},
	}
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	assert.Empty(t, adapter.FetchListings(context.Background(), nil))
}

func TestSiteAdapterSkipsScriptOnlyPage(t *testing.T) {
	scriptOnly := `<noscript>Habilite o Javascript para continuar</noscript>
<a href="/imovel/AP1234_SMI"><ul><li>Apartamento 2 dorm Centro</li></ul></a>`
	f := &fakeFetcher{bodies: map[string]string{
		"https://santamaria.com.br/alugar":          scriptOnly,
		"https://santamaria.com.br/comprar-prontos": scriptOnly,
	}}
	adapter, err := NewSiteAdapter(DefaultSites()[1], f)
	require.NoError(t, err)

	records := adapter.FetchListings(context.Background(), nil)
	assert.Empty(t, records)
	assert.Len(t, f.calls, 2, "every page is still attempted")
}

func TestSiteAdapterKeepsServerRenderedPageWithNoscriptBanner(t *testing.T) {
	page := `<noscript>Please enable JavaScript to use all features of this site.</noscript>` + plazaPage
	site := plazaSite("https://plazachapeco.com.br")
	f := &fakeFetcher{bodies: map[string]string{site.Pages[0].URL: page}}

	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	records := adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1, "sites without script markers never skip a page")
	assert.Equal(t, "202", records[0].ExternalCode)
}

func TestSiteAdapterBuildsURLFromTemplate(t *testing.T) {
	page := `<div class="card"><h3>Apartamento no Centro</h3><span>Cód. 4521</span><span>R$ 1.200,00</span></div>`
	f := &fakeFetcher{bodies: map[string]string{"https://example.com/aluguel": page}}
	site := config.SiteConfig{
		Agency:        "Exemplo",
		Origin:        "https://example.com/",
		Pages:         []config.PageConfig{{URL: "https://example.com/aluguel", DealType: "RENT"}},
		CardSelectors: []string{"div.card"},
		URLTemplate:   "{origin}/imovel/{code}/",
	}

	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	records := adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1)
	assert.Equal(t, "4521", records[0].ExternalCode)
	assert.Equal(t, "https://example.com/imovel/4521/", records[0].URL)

	// without a template the link stays empty and the card is still kept
	site.URLTemplate = ""
	adapter, err = NewSiteAdapter(site, f)
	require.NoError(t, err)
	records = adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].URL)
}

func TestSiteAdapterDropsOverlongURL(t *testing.T) {
	long := "/imovel/303/" + strings.Repeat("x", maxURLLength)
	page := `<a href="` + long + `"><div class="chamadaimovel">Apartamento no Centro</div><span>Cód. 303</span></a>`
	site := plazaSite("https://plazachapeco.com.br")
	f := &fakeFetcher{bodies: map[string]string{site.Pages[0].URL: page}}

	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	records := adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1)
	assert.Equal(t, "303", records[0].ExternalCode)
	assert.Equal(t, "https://plazachapeco.com.br/imovel/303/", records[0].URL)
	assert.LessOrEqual(t, len(records[0].URL), maxURLLength)

	site.URLTemplate = ""
	adapter, err = NewSiteAdapter(site, f)
	require.NoError(t, err)
	records = adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].URL)
}

func TestSiteAdapterSkipsFailedPages(t *testing.T) {
	good := `<a href="/imovel/7/x"><div class="chamadaimovel">Sobrado no Jardim Itália</div></a>`
	f := &fakeFetcher{
		bodies: map[string]string{"https://p.example/venda": good},
		errs: map[string]error{
			"https://p.example/aluguel": &FetchError{URL: "https://p.example/aluguel", StatusCode: http.StatusInternalServerError},
		},
	}
	site := config.SiteConfig{
		Agency: "P",
		Origin: "https://p.example",
		Pages: []config.PageConfig{
			{URL: "https://p.example/aluguel", DealType: "RENT"},
			{URL: "https://p.example/venda", DealType: "SALE"},
		},
		CardSelectors: []string{`a[href*="/imovel/"]`},
		Fields:        config.FieldSelectors{Title: ".chamadaimovel"},
	}
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)

	records := adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1)
	assert.Equal(t, "7", records[0].ExternalCode)
	assert.Equal(t, "Sobrado", records[0].PropertyType)
	assert.Equal(t, models.DealTypeSale, records[0].DealType)
}

func TestSiteAdapterRecoversPagePanic(t *testing.T) {
	good := `<a href="/imovel/8/x"><div class="chamadaimovel">Terreno no Engenho Braun</div></a>`
	f := &fakeFetcher{
		bodies: map[string]string{"https://p.example/venda": good},
		panics: map[string]bool{"https://p.example/aluguel": true},
	}
	site := config.SiteConfig{
		Agency: "P",
		Origin: "https://p.example",
		Pages: []config.PageConfig{
			{URL: "https://p.example/aluguel", DealType: "RENT"},
			{URL: "https://p.example/venda", DealType: "SALE"},
		},
		CardSelectors: []string{`a[href*="/imovel/"]`},
		Fields:        config.FieldSelectors{Title: ".chamadaimovel"},
	}
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)

	var records []models.ListingRecord
	assert.NotPanics(t, func() { records = adapter.FetchListings(context.Background(), nil) })
	require.Len(t, records, 1)
	assert.Equal(t, "Terreno", records[0].PropertyType)
}

func TestSiteAdapterDealTypeFilter(t *testing.T) {
	f := &fakeFetcher{bodies: map[string]string{}}
	site := plazaSite("https://plazachapeco.com.br")
	site.Pages = DefaultSites()[0].Pages
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)

	sale := models.DealTypeSale
	adapter.FetchListings(context.Background(), &sale)
	assert.Equal(t, []string{"https://plazachapeco.com.br/comprar-imoveis-chapeco-sc/"}, f.calls)
}

func TestSiteAdapterDedupesWithinAdapter(t *testing.T) {
	card := `<a href="/imovel/55/x"><div class="chamadaimovel">Apartamento Passo dos Fortes</div></a>`
	f := &fakeFetcher{bodies: map[string]string{
		"https://p.example/a": card + card,
		"https://p.example/b": card,
	}}
	site := config.SiteConfig{
		Agency: "P",
		Origin: "https://p.example",
		Pages: []config.PageConfig{
			{URL: "https://p.example/a", DealType: "RENT"},
			{URL: "https://p.example/b", DealType: "RENT"},
		},
		CardSelectors: []string{`a[href*="/imovel/"]`},
		Fields:        config.FieldSelectors{Title: ".chamadaimovel"},
	}
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	assert.Len(t, adapter.FetchListings(context.Background(), nil), 1)
}

func TestCasaImoveisTextCards(t *testing.T) {
	page := `<nav><a href="/contato">Contato</a><a href="/sobre">Apartamento - veja mais</a></nav>
<a href="/imovel/1234">Apartamento - 1234 Centro - Chapecó 70m² 2 quartos 1 banheiro R$ 1.800,00</a>
<a href="/imovel/88">Casa - 88 Efapi - Chapecó 120m² 3 quartos R$ 2.500,00</a>`
	site := DefaultSites()[2]
	site.Pages = []config.PageConfig{{URL: "https://www.casaimoveis.net/alugue-um-imovel", DealType: "RENT"}}
	f := &fakeFetcher{bodies: map[string]string{site.Pages[0].URL: page}}

	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)
	records := adapter.FetchListings(context.Background(), nil)

	require.Len(t, records, 2)
	first := records[0]
	assert.Equal(t, "1234", first.ExternalCode)
	assert.Equal(t, "Apartamento", first.PropertyType)
	assert.Equal(t, "Centro", first.Neighborhood)
	assert.Equal(t, "Centro - Chapecó", first.Address)
	assert.Equal(t, "70m²", first.Area)
	assert.Equal(t, "2", first.Bedrooms)
	assert.Equal(t, "1", first.Bathrooms)
	assert.Equal(t, "R$ 1.800,00", first.Price)
	assert.Equal(t, "https://www.casaimoveis.net/imovel/1234", first.URL)

	assert.Equal(t, "88", records[1].ExternalCode)
	assert.Equal(t, "Casa", records[1].PropertyType)
	assert.Equal(t, "Efapi", records[1].Neighborhood)
}

func TestFormigaCodeSelector(t *testing.T) {
	page := `<a href="/imovel/apartamento-centro-chapeco-4521">
  <span class="card-buttons_code__LsI0q">Cód. 4521</span>
  <span class="vertical-property-card_title__Ab1">Apartamento com 2 quartos</span>
  <span class="contracts_priceNumber__WhudD">R$ 450.000,00</span>
</a>`
	site := DefaultSites()[3]
	f := &fakeFetcher{bodies: map[string]string{
		"https://www.formigaimoveis.com.br/venda":       page,
		"https://www.formigaimoveis.com.br/lancamentos": page,
	}}
	adapter, err := NewSiteAdapter(site, f)
	require.NoError(t, err)

	records := adapter.FetchListings(context.Background(), nil)
	require.Len(t, records, 1, "launch page repeats the same SALE key")
	rec := records[0]
	assert.Equal(t, "4521", rec.ExternalCode)
	assert.Equal(t, "Apartamento com 2 quartos", rec.Title)
	assert.Equal(t, "R$ 450.000,00", rec.Price)
	assert.Equal(t, "2", rec.Bedrooms)
	assert.Equal(t, models.DealTypeSale, rec.DealType)
	assert.Equal(t, "https://www.formigaimoveis.com.br/imovel/apartamento-centro-chapeco-4521", rec.URL)
}

func TestNewSiteAdapterRejectsBadConfig(t *testing.T) {
	base := config.SiteConfig{
		Agency:        "X",
		Origin:        "https://x.example",
		Pages:         []config.PageConfig{{URL: "https://x.example/a", DealType: "RENT"}},
		CardSelectors: []string{"a"},
	}

	noPages := base
	noPages.Pages = nil
	_, err := NewSiteAdapter(noPages, &fakeFetcher{})
	assert.Error(t, err)

	badDeal := base
	badDeal.Pages = []config.PageConfig{{URL: "https://x.example/a", DealType: "LEASE"}}
	_, err = NewSiteAdapter(badDeal, &fakeFetcher{})
	assert.Error(t, err)

	badPattern := base
	badPattern.CardTextPattern = "("
	_, err = NewSiteAdapter(badPattern, &fakeFetcher{})
	assert.Error(t, err)

	noGroup := base
	noGroup.CodePatterns = []string{`\d+`}
	_, err = NewSiteAdapter(noGroup, &fakeFetcher{})
	assert.Error(t, err)
}

func TestDefaultSitesBuild(t *testing.T) {
	adapters, err := NewAdapters(DefaultSites(), &fakeFetcher{})
	require.NoError(t, err)
	var names []string
	for _, a := range adapters {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"Plaza Chapecó", "Santa Maria", "Casa Imóveis", "Formiga Imóveis"}, names)
}

func TestConfiguredSites(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Scraper.City = "Xanxerê"

	sites := ConfiguredSites(cfg)
	require.Len(t, sites, len(DefaultSites()))
	for _, s := range sites {
		assert.Equal(t, "Xanxerê", s.City)
	}

	cfg.Sites = []config.SiteConfig{{Agency: "Custom", City: "Chapecó"}}
	sites = ConfiguredSites(cfg)
	require.Len(t, sites, 1)
	assert.Equal(t, "Chapecó", sites[0].City)
	// the config itself is left untouched
	assert.Equal(t, "Chapecó", cfg.Sites[0].City)
}
