// Package extract pulls listing fields out of free text scraped from agency sites.
//
// Every function here is total: patterns are tried in order, the first hit wins,
// and a miss returns the empty string.
package extract

import (
	"regexp"
	"strings"
)

var spaceRe = regexp.MustCompile(`\s+`)

// Clean collapses whitespace (including non-breaking spaces) and trims
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.ReplaceAll(s, "\u202f", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// firstSubmatch returns the first capture group of the first pattern that matches
func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// URL code conventions, one per site family
var codeURLPatterns = []*regexp.Regexp{
	// plazachapeco.com.br/imovel/12345/apartamento-...
	regexp.MustCompile(`/imovel/(\d+)(?:[/?#]|$)`),
	// crm.santamaria.com.br/imovel/AP1234_SMI
	regexp.MustCompile(`(?i)/imovel/((?:AP|CA|TE|SA|SO|GA|CO|CH)\d+)`),
	// ?codigo=123 / ?cod=123 / ?ref=AB12
	regexp.MustCompile(`(?i)[?&](?:codigo|cod|ref)=([A-Za-z0-9]+)`),
	// formigaimoveis.com.br/imovel/apartamento-centro-chapeco-4521
	regexp.MustCompile(`/imovel/[^?#]*?-(\d{2,})(?:/)?(?:[?#]|$)`),
	// generic /imoveis/123 or /detalhe/123
	regexp.MustCompile(`/(?:imoveis|detalhe|detalhes)/(\d+)(?:[/?#]|$)`),
}

// CodeFromURL extracts the agency listing code from a detail URL
func CodeFromURL(rawURL string) string {
	return strings.ToUpper(firstSubmatch(codeURLPatterns, strings.TrimSpace(rawURL)))
}

var codeTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)c[óo]d(?:igo)?\.?\s*:?\s*([A-Z]{0,3}\d+)`),
	regexp.MustCompile(`(?i)\bref(?:er[êe]ncia)?\.?\s*:?\s*([A-Z]{0,3}\d+)`),
	regexp.MustCompile(`\b((?:AP|CA|TE|SA|SO|GA|CO|CH)\d{2,})\b`),
}

// CodeFromText extracts a listing code from card text ("Cód. 4521", "Ref: AP123")
func CodeFromText(text string) string {
	return strings.ToUpper(firstSubmatch(codeTextPatterns, Clean(text)))
}

// Kind selects which numeric field NumericField looks for
type Kind string

const (
	KindArea      Kind = "area"
	KindBedrooms  Kind = "bedrooms"
	KindBathrooms Kind = "bathrooms"
	KindParking   Kind = "parking"
)

// number with optional Brazilian thousands separator and decimals
const decimalNumber = `(\d{1,3}(?:\.\d{3})+(?:,\d+)?|\d+(?:[.,]\d+)?)`

var numericPatterns = map[Kind][]*regexp.Regexp{
	KindArea: {
		regexp.MustCompile(decimalNumber + `\s*(?:m²|m2|㎡)`),
		regexp.MustCompile(`(?i)[áa]rea(?:\s+(?:privativa|total|útil|util|constru[íi]da))?\s*:?\s*` + decimalNumber),
		regexp.MustCompile(`(?i)` + decimalNumber + `\s*metros`),
	},
	KindBedrooms: {
		regexp.MustCompile(`(?i)(\d+)\s*(?:quartos?|qtos?\b)`),
		regexp.MustCompile(`(?i)(\d+)\s*dorm`),
		regexp.MustCompile(`(?i)(\d+)\s*su[íi]tes?`),
		regexp.MustCompile(`(?i)(?:quartos?|dormit[óo]rios?)\s*:?\s*(\d+)`),
	},
	KindBathrooms: {
		regexp.MustCompile(`(?i)(\d+)\s*banheiros?`),
		regexp.MustCompile(`(?i)(\d+)\s*banh?\b\.?`),
		regexp.MustCompile(`(?i)(\d+)\s*wc\b`),
		regexp.MustCompile(`(?i)banheiros?\s*:?\s*(\d+)`),
	},
	KindParking: {
		regexp.MustCompile(`(?i)(\d+)\s*vagas?`),
		regexp.MustCompile(`(?i)(\d+)\s*garage(?:m|ns)`),
		regexp.MustCompile(`(?i)(?:vagas?|garage(?:m|ns))\s*:?\s*(\d+)`),
	},
}

// NumericField returns the first value for kind found in text.
// Areas keep their unit ("85m²"); counts are bare digits.
func NumericField(text string, kind Kind) string {
	patterns, ok := numericPatterns[kind]
	if !ok {
		return ""
	}
	value := firstSubmatch(patterns, Clean(text))
	if value == "" {
		return ""
	}
	if kind == KindArea {
		return value + "m²"
	}
	return value
}

var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`R\$\s*(?:\d{1,3}(?:\.\d{3})+|\d+)(?:,\d{1,2})?`),
}

var labelledPriceRe = regexp.MustCompile(`(?i)(?:valor|pre[çc]o|aluguel)\s*:?\s*(\d{1,3}(?:\.\d{3})*,\d{2})`)

// Price returns the first currency-prefixed amount exactly as displayed
func Price(text string) string {
	text = Clean(text)
	for _, re := range pricePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	if m := labelledPriceRe.FindStringSubmatch(text); len(m) > 1 {
		return "R$ " + m[1]
	}
	return ""
}
