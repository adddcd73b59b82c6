package extract

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// DefaultPropertyType is returned when no keyword matches
const DefaultPropertyType = "Imóvel"

// DefaultCity is the city token neighborhoods are anchored to
const DefaultCity = "Chapecó"

type typeRule struct {
	category string
	keywords []string
}

// order matters: the first rule with a keyword in the text wins
var propertyTypeRules = []typeRule{
	{"Kitnet", []string{"kitnet", "kitinete", "quitinete", "studio", "estúdio", "loft"}},
	{"Cobertura", []string{"cobertura"}},
	{"Apartamento", []string{"apartamento", "apto"}},
	{"Galpão", []string{"galpão", "galpao", "barracão", "barracao", "pavilhão", "pavilhao"}},
	{"Terreno", []string{"terreno", "lote"}},
	{"Chácara", []string{"chácara", "chacara", "sítio", "sitio"}},
	{"Sobrado", []string{"sobrado"}},
	{"Prédio", []string{"prédio", "predio", "edifício comercial"}},
	{"Casa", []string{"casa", "residência", "residencia"}},
	{"Comercial", []string{"sala comercial", "sala", "loja", "ponto comercial", "escritório", "comercial"}},
}

// ClassifyPropertyType maps a title or card text to a property category
func ClassifyPropertyType(text string) string {
	haystack := strings.ToLower(Clean(text))
	if haystack == "" {
		return DefaultPropertyType
	}
	for _, rule := range propertyTypeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.category
			}
		}
	}
	return DefaultPropertyType
}

var codePrefixTypes = []struct {
	prefix   string
	category string
}{
	{"AP", "Apartamento"},
	{"CA", "Casa"},
	{"TE", "Terreno"},
	{"SA", "Comercial"},
	{"SO", "Sobrado"},
	{"GA", "Galpão"},
	{"CO", "Cobertura"},
	{"CH", "Chácara"},
}

// PropertyTypeFromCode infers the category from agency code prefixes like "AP1234"
func PropertyTypeFromCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, p := range codePrefixTypes {
		if strings.HasPrefix(code, p.prefix) && len(code) > len(p.prefix) && unicode.IsDigit(rune(code[len(p.prefix)])) {
			return p.category
		}
	}
	return ""
}

// words that never start a real neighborhood name
var genericLeadWords = map[string]bool{
	"imóvel": true, "imovel": true, "imóveis": true, "imoveis": true,
	"apartamento": true, "apto": true, "casa": true, "sobrado": true,
	"terreno": true, "sala": true, "venda": true, "vende": true,
	"aluguel": true, "alugar": true, "comprar": true, "locação": true,
	"ver": true, "saiba": true, "confira": true, "oportunidade": true,
	"lançamento": true, "cidade": true, "região": true, "município": true,
	"localizado": true, "localizada": true, "excelente": true, "ótimo": true,
}

// calls to action and listing jargon that never appear in a neighborhood name
var nonPlaceWords = map[string]bool{
	"mais": true, "para": true, "em": true, "no": true, "na": true, "à": true,
	"destaque": true, "destaques": true, "novo": true, "nova": true, "novos": true,
	"mobiliado": true, "mobiliada": true, "semimobiliado": true, "residencial": true,
	"alugue": true, "compre": true, "clique": true, "aqui": true, "detalhes": true,
	"contato": true, "agende": true, "visita": true, "whatsapp": true,
	"exclusivo": true, "exclusiva": true, "imperdível": true, "promoção": true,
	"reduzido": true, "disponível": true, "quartos": true, "dormitórios": true,
}

// placeName strips generic lead words ("Casa Centro" -> "Centro") and
// reports false when nothing usable is left or any remaining word is jargon
func placeName(candidate, city string) (string, bool) {
	words := strings.Fields(candidate)
	for len(words) > 0 && genericLeadWords[strings.ToLower(words[0])] {
		words = words[1:]
	}
	for _, w := range words {
		lw := strings.ToLower(w)
		if genericLeadWords[lw] || nonPlaceWords[lw] {
			return "", false
		}
	}
	name := strings.Join(words, " ")
	lower := strings.ToLower(name)
	if len([]rune(lower)) < 3 {
		return "", false
	}
	if lower == strings.ToLower(city) || lower == "sc" || lower == "santa catarina" {
		return "", false
	}
	for _, r := range lower {
		if unicode.IsDigit(r) {
			return "", false
		}
	}
	return name, true
}

var neighborhoodPatternCache sync.Map // city -> []*regexp.Regexp

func neighborhoodPatterns(city string) []*regexp.Regexp {
	if cached, ok := neighborhoodPatternCache.Load(city); ok {
		return cached.([]*regexp.Regexp)
	}
	cityRe := `(?i:` + regexp.QuoteMeta(city) + `)`
	// up to four capitalised words, allowing "de/da/do/dos/das" connectors
	place := `(\p{Lu}[\p{L}']*(?:\s+(?:d[aeo]s?\s+)?\p{Lu}[\p{L}']*){0,3})`
	patterns := []*regexp.Regexp{
		regexp.MustCompile(`(?i:bairro)\s*:?\s*` + place),
		regexp.MustCompile(place + `\s*[-–,/|]\s*` + cityRe),
		regexp.MustCompile(`\b(?i:em|no|na)\s+` + place + `\s*(?:[-–,/|]|\(|\s+` + cityRe + `)`),
	}
	actual, _ := neighborhoodPatternCache.LoadOrStore(city, patterns)
	return actual.([]*regexp.Regexp)
}

// Neighborhood isolates the place name that precedes the default city token
func Neighborhood(text string) string {
	return NeighborhoodIn(text, DefaultCity)
}

// NeighborhoodIn is Neighborhood for an arbitrary city token
func NeighborhoodIn(text, city string) string {
	text = Clean(text)
	if text == "" || city == "" {
		return ""
	}
	for _, re := range neighborhoodPatterns(city) {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if len(m) < 2 {
				continue
			}
			if name, ok := placeName(m[1], city); ok {
				return name
			}
		}
	}
	return ""
}
