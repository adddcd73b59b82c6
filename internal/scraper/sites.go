package scraper

import (
	"fmt"

	"imovel-monitor/internal/config"
)

// DefaultSites returns the built-in agency sites for Chapecó, in run order
func DefaultSites() []config.SiteConfig {
	return []config.SiteConfig{
		{
			Agency: "Plaza Chapecó",
			Origin: "https://plazachapeco.com.br",
			Pages: []config.PageConfig{
				{URL: "https://plazachapeco.com.br/alugar-imoveis-chapeco-sc/", DealType: "RENT"},
				{URL: "https://plazachapeco.com.br/comprar-imoveis-chapeco-sc/", DealType: "SALE"},
			},
			CardSelectors: []string{
				`a[href*="/imovel/"]:has(.chamadaimovel)`,
				`a[href*="/imovel/"]:has(.valorimovel)`,
				`a[href*="/imovel/"]`,
			},
			Fields: config.FieldSelectors{
				Title:    ".chamadaimovel",
				Price:    ".valorimovel",
				Features: ".caracteristicas",
				Address:  ".enderecoimovel",
			},
			URLTemplate: "{origin}/imovel/{code}/",
		},
		{
			// renders client-side most of the time; the marker check skips it
			Agency: "Santa Maria",
			Origin: "https://santamaria.com.br",
			Pages: []config.PageConfig{
				{URL: "https://santamaria.com.br/alugar", DealType: "RENT"},
				{URL: "https://santamaria.com.br/comprar-prontos", DealType: "SALE"},
			},
			CardSelectors: []string{
				`a[href*="/imovel/"]:has(ul)`,
				`a[href*="/imovel/"]`,
			},
			URLTemplate:   "https://crm.santamaria.com.br/imovel/{code}",
			ScriptMarkers: []string{"Habilite o Javascript", "enable JavaScript"},
		},
		{
			Agency: "Casa Imóveis",
			Origin: "https://www.casaimoveis.net",
			Pages: []config.PageConfig{
				{URL: "https://www.casaimoveis.net/alugue-um-imovel", DealType: "RENT"},
			},
			CardSelectors:   []string{`a[href]`},
			CardTextPattern: `(?i)^(?:apartamento|casa|terreno|sala comercial|barracão|sobrado|kitnet)\s+-\s+\d+.*R\$`,
			CodePatterns:    []string{`^\S.*?\s+-\s+(\d+)`},
		},
		{
			Agency: "Formiga Imóveis",
			Origin: "https://www.formigaimoveis.com.br",
			Pages: []config.PageConfig{
				{URL: "https://www.formigaimoveis.com.br/venda", DealType: "SALE"},
				{URL: "https://www.formigaimoveis.com.br/lancamentos", DealType: "SALE"},
			},
			CardSelectors: []string{
				`a[href*="/imovel/"]:has([class*="card-buttons_code"])`,
				`[class*="vertical-property-card"]:has([class*="card-buttons_code"])`,
				`a[href*="/imovel/"]`,
			},
			Fields: config.FieldSelectors{
				Title: `[class*="vertical-property-card_title"]`,
				Price: `[class*="contracts_priceNumber"]`,
				Code:  `[class*="card-buttons_code"]`,
				Link:  `a[href*="/imovel/"]`,
			},
		},
	}
}

// ConfiguredSites returns the sites from cfg, or the built-in ones when the
// config lists none. Sites without a city get the scraper's city.
func ConfiguredSites(cfg *config.Config) []config.SiteConfig {
	sites := cfg.Sites
	if len(sites) == 0 {
		sites = DefaultSites()
	}
	out := make([]config.SiteConfig, len(sites))
	copy(out, sites)
	for i := range out {
		if out[i].City == "" {
			out[i].City = cfg.Scraper.City
		}
	}
	return out
}

// NewFetcher builds the retrying HTTP fetcher described by cfg
func NewFetcher(cfg config.ScraperConfig) Fetcher {
	minDelay, maxDelay := cfg.GetRetryDelays()
	return NewRetryFetcher(NewHTTPFetcher(HTTPFetcherConfig{
		Timeout:                cfg.GetTimeout(),
		UserAgent:              cfg.UserAgent,
		RequestDelay:           cfg.GetRequestDelay(),
		RequestJitter:          cfg.GetRequestJitter(),
		MaxBodyBytes:           cfg.MaxBodyBytes,
		CircuitBreakerFailures: cfg.CircuitBreakerFailures,
	}), cfg.MaxAttempts, minDelay, maxDelay)
}

// NewAdapters builds one adapter per site, sharing a fetcher
func NewAdapters(sites []config.SiteConfig, fetcher Fetcher) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(sites))
	for i, site := range sites {
		a, err := NewSiteAdapter(site, fetcher)
		if err != nil {
			return nil, fmt.Errorf("site %d: %w", i, err)
		}
		adapters = append(adapters, a)
	}
	return adapters, nil
}
