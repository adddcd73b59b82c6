package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-playground/validator/v10"

	"imovel-monitor/internal/config"
	"imovel-monitor/internal/extract"
	"imovel-monitor/internal/models"
)

// Adapter produces listing records for one agency. FetchListings never
// returns an error: failed pages and cards only shrink the result.
type Adapter interface {
	Name() string
	FetchListings(ctx context.Context, filter *models.DealType) []models.ListingRecord
}

// ErrScriptRequired marks a page that only renders with client-side script
var ErrScriptRequired = errors.New("page requires client-side script")

const maxTitleRunes = 160

// longer links are treated as missing
const maxURLLength = 2048

var validate = validator.New()

// SiteAdapter is the one Adapter implementation; sites differ only by config
type SiteAdapter struct {
	site         config.SiteConfig
	fetcher      Fetcher
	origin       *url.URL
	city         string
	cardFilter   *regexp.Regexp
	codePatterns []*regexp.Regexp
	markers      []string
}

// NewSiteAdapter validates the site config and compiles its patterns
func NewSiteAdapter(site config.SiteConfig, fetcher Fetcher) (*SiteAdapter, error) {
	if err := validate.Struct(site); err != nil {
		return nil, fmt.Errorf("invalid site %q: %w", site.Agency, err)
	}
	origin, err := url.Parse(site.Origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin for %q: %w", site.Agency, err)
	}

	a := &SiteAdapter{
		site:    site,
		fetcher: fetcher,
		origin:  origin,
		city:    site.City,
		markers: site.ScriptMarkers,
	}
	if a.city == "" {
		a.city = extract.DefaultCity
	}
	if site.CardTextPattern != "" {
		if a.cardFilter, err = regexp.Compile(site.CardTextPattern); err != nil {
			return nil, fmt.Errorf("invalid card_text_pattern for %q: %w", site.Agency, err)
		}
	}
	for _, p := range site.CodePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid code pattern for %q: %w", site.Agency, err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("code pattern %q for %q needs a capture group", p, site.Agency)
		}
		a.codePatterns = append(a.codePatterns, re)
	}
	return a, nil
}

// Name returns the agency name
func (a *SiteAdapter) Name() string {
	return a.site.Agency
}

// FetchListings visits every configured page, optionally restricted to one
// deal type, and returns the accepted cards in page order
func (a *SiteAdapter) FetchListings(ctx context.Context, filter *models.DealType) (records []models.ListingRecord) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[%s] adapter panicked, keeping %d records: %v", a.site.Agency, len(records), r)
		}
	}()

	seen := make(map[models.ListingKey]bool)
	for _, page := range a.site.Pages {
		dealType := models.DealType(page.DealType)
		if filter != nil && *filter != dealType {
			continue
		}
		if ctx.Err() != nil {
			logger.Warnf("[%s] stopping early: %v", a.site.Agency, ctx.Err())
			break
		}

		pageRecords, err := a.scrapePage(ctx, page.URL, dealType)
		if err != nil {
			logger.Warnf("[%s] skipping %s (%s): %v", a.site.Agency, page.URL, dealType, err)
			continue
		}

		added := 0
		for _, rec := range pageRecords {
			if seen[rec.Key()] {
				continue
			}
			seen[rec.Key()] = true
			records = append(records, rec)
			added++
		}
		logger.Infof("[%s] %s (%s): %d listings", a.site.Agency, page.URL, dealType, added)
	}
	return records
}

// scrapePage fetches and parses one page; a panic here skips only this page
func (a *SiteAdapter) scrapePage(ctx context.Context, pageURL string, dealType models.DealType) (records []models.ListingRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page processing panicked: %v", r)
		}
	}()

	page, err := a.fetcher.Get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if marker, ok := a.requiresScript(page.Body); ok {
		return nil, fmt.Errorf("%w (marker %q)", ErrScriptRequired, marker)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	cards, selector := a.selectCards(doc)
	if cards.Length() == 0 {
		logger.Infof("[%s] no cards found on %s", a.site.Agency, pageURL)
		return nil, nil
	}
	logger.Debugf("[%s] %d cards on %s using %q", a.site.Agency, cards.Length(), pageURL, selector)

	dropped := 0
	cards.Each(func(i int, card *goquery.Selection) {
		rec, ok := a.processCard(card, dealType)
		if !ok {
			dropped++
			return
		}
		records = append(records, rec)
	})
	if dropped > 0 {
		logger.Debugf("[%s] dropped %d cards on %s", a.site.Agency, dropped, pageURL)
	}
	return records, nil
}

func (a *SiteAdapter) requiresScript(body []byte) (string, bool) {
	lower := bytes.ToLower(body)
	for _, m := range a.markers {
		if m != "" && bytes.Contains(lower, bytes.ToLower([]byte(m))) {
			return m, true
		}
	}
	return "", false
}

// selectCards tries the configured selectors in order and returns the first
// non-empty selection
func (a *SiteAdapter) selectCards(doc *goquery.Document) (*goquery.Selection, string) {
	for _, selector := range a.site.CardSelectors {
		sel := doc.Find(selector)
		if a.cardFilter != nil {
			sel = sel.FilterFunction(func(_ int, s *goquery.Selection) bool {
				return a.cardFilter.MatchString(extract.Clean(s.Text()))
			})
		}
		if sel.Length() > 0 {
			return sel, selector
		}
	}
	return doc.Find("__no_match__"), ""
}

// processCard maps one card to a record; malformed markup drops the card
func (a *SiteAdapter) processCard(card *goquery.Selection, dealType models.DealType) (rec models.ListingRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warnf("[%s] card dropped: %v", a.site.Agency, r)
			ok = false
		}
	}()

	rec = a.extractCard(card, dealType)
	if err := validate.Struct(rec); err != nil {
		return rec, false
	}
	return rec, true
}

func (a *SiteAdapter) extractCard(card *goquery.Selection, dealType models.DealType) models.ListingRecord {
	f := a.site.Fields
	text := extract.Clean(card.Text())
	href := a.absoluteURL(a.cardLink(card))

	rec := models.ListingRecord{
		Agency:   a.site.Agency,
		DealType: dealType,
		URL:      href,
	}

	rec.ExternalCode = a.cardCode(card, text, href)
	if rec.URL == "" {
		rec.URL = a.templateURL(rec.ExternalCode)
	}
	rec.Title = a.cardTitle(card, text)

	priceText := fieldText(card, f.Price)
	rec.Price = extract.Price(priceText)
	if rec.Price == "" {
		rec.Price = extract.Price(text)
	}

	features := fieldText(card, f.Features)
	if features == "" {
		features = text
	}
	rec.Area = extract.NumericField(features, extract.KindArea)
	rec.Bedrooms = extract.NumericField(features, extract.KindBedrooms)
	rec.Bathrooms = extract.NumericField(features, extract.KindBathrooms)
	rec.ParkingSpaces = extract.NumericField(features, extract.KindParking)

	rec.Address = fieldText(card, f.Address)
	rec.Neighborhood = extract.NeighborhoodIn(rec.Address, a.city)
	if rec.Neighborhood == "" {
		rec.Neighborhood = extract.NeighborhoodIn(text, a.city)
	}
	if rec.Address == "" && rec.Neighborhood != "" {
		rec.Address = rec.Neighborhood + " - " + a.city
	}

	rec.PropertyType = a.propertyType(rec.Title, rec.ExternalCode, text)
	return rec
}

func (a *SiteAdapter) propertyType(title, code, text string) string {
	if t := extract.ClassifyPropertyType(title); t != extract.DefaultPropertyType {
		return t
	}
	if t := extract.PropertyTypeFromCode(code); t != "" {
		return t
	}
	if t := extract.ClassifyPropertyType(text); t != extract.DefaultPropertyType {
		return t
	}
	if a.site.DefaultPropertyType != "" {
		return a.site.DefaultPropertyType
	}
	return extract.DefaultPropertyType
}

var bareCodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,30}$`)

// cardCode tries the code selector, the site's own patterns, the URL
// conventions and finally generic "Cód." patterns in the card text
func (a *SiteAdapter) cardCode(card *goquery.Selection, text, href string) string {
	if raw := fieldText(card, a.site.Fields.Code); raw != "" {
		if code := extract.CodeFromText(raw); code != "" {
			return code
		}
		if bareCodeRe.MatchString(raw) {
			return strings.ToUpper(raw)
		}
	}
	for _, re := range a.codePatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return strings.ToUpper(strings.TrimSpace(m[1]))
		}
	}
	if code := extract.CodeFromURL(href); code != "" {
		return code
	}
	return extract.CodeFromText(text)
}

func (a *SiteAdapter) cardTitle(card *goquery.Selection, text string) string {
	if t := fieldText(card, a.site.Fields.Title); t != "" {
		return truncateRunes(t, maxTitleRunes)
	}
	if t, ok := card.Attr("title"); ok && strings.TrimSpace(t) != "" {
		return truncateRunes(extract.Clean(t), maxTitleRunes)
	}
	if t := extract.Clean(card.Find("h1, h2, h3, h4").First().Text()); t != "" {
		return truncateRunes(t, maxTitleRunes)
	}
	return truncateRunes(text, maxTitleRunes)
}

// cardLink returns the href of the card, its configured link, or its first anchor
func (a *SiteAdapter) cardLink(card *goquery.Selection) string {
	if sel := a.site.Fields.Link; sel != "" {
		if href, ok := card.Find(sel).First().Attr("href"); ok {
			return href
		}
	}
	if goquery.NodeName(card) == "a" {
		if href, ok := card.Attr("href"); ok {
			return href
		}
	}
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		return href
	}
	return ""
}

// absoluteURL resolves href against the site origin; unusable or over-long
// links come back empty
func (a *SiteAdapter) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return boundURL(href)
	}
	return boundURL(a.origin.ResolveReference(ref).String())
}

// templateURL rebuilds a detail link from the site's url_template
func (a *SiteAdapter) templateURL(code string) string {
	if a.site.URLTemplate == "" || code == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{origin}", strings.TrimSuffix(a.site.Origin, "/"),
		"{code}", url.PathEscape(code),
	)
	return boundURL(r.Replace(a.site.URLTemplate))
}

func boundURL(u string) string {
	if len(u) > maxURLLength {
		return ""
	}
	return u
}

func fieldText(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return extract.Clean(card.Find(selector).First().Text())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
