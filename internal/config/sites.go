package config

// SiteConfig describes one agency site as data. Adding an agency is a new
// entry here or in the YAML "sites" list, never new control flow.
type SiteConfig struct {
	Agency string       `yaml:"agency" validate:"required"`
	Origin string       `yaml:"origin" validate:"required,url"`
	City   string       `yaml:"city"`
	Pages  []PageConfig `yaml:"pages" validate:"required,min=1,dive"`

	// CardSelectors are tried in order; the first with at least one match wins
	CardSelectors []string `yaml:"card_selectors" validate:"required,min=1"`
	// CardTextPattern, when set, drops cards whose text does not match
	CardTextPattern string `yaml:"card_text_pattern"`
	// CodePatterns are regexps applied to card text before URL conventions
	CodePatterns []string       `yaml:"code_patterns"`
	Fields       FieldSelectors `yaml:"fields"`
	// URLTemplate rebuilds a detail link for cards without one, e.g.
	// "{origin}/imovel/{code}/"
	URLTemplate string `yaml:"url_template"`

	// ScriptMarkers signal a page that only renders with client-side script
	ScriptMarkers       []string `yaml:"script_markers"`
	DefaultPropertyType string   `yaml:"default_property_type"`
}

// PageConfig is one listing page and the market segment it lists
type PageConfig struct {
	URL      string `yaml:"url" validate:"required,url"`
	DealType string `yaml:"deal_type" validate:"required,oneof=RENT SALE"`
}

// FieldSelectors are CSS selectors evaluated inside a card.
// Empty selectors fall back to the card's own text and attributes.
type FieldSelectors struct {
	Title    string `yaml:"title"`
	Price    string `yaml:"price"`
	Features string `yaml:"features"`
	Address  string `yaml:"address"`
	Code     string `yaml:"code"`
	Link     string `yaml:"link"`
}
