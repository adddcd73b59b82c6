package search

import (
	"fmt"
	"strings"
	"time"

	"imovel-monitor/internal/models"
)

const (
	defaultLimit = 20
	maxLimit     = 200
)

// SearchParams narrows a full-text search
type SearchParams struct {
	Query        string
	DealType     models.DealType
	PropertyType string
	Neighborhood string
	Agency       string
	Since        *time.Time
	Limit        int64
}

func (p SearchParams) limit() int64 {
	switch {
	case p.Limit <= 0:
		return defaultLimit
	case p.Limit > maxLimit:
		return maxLimit
	}
	return p.Limit
}

// quote renders a Meilisearch string literal
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// BuildFilter renders params as a Meilisearch filter expression.
// Only active listings are searchable.
func BuildFilter(p SearchParams) string {
	filters := []string{"active = true"}

	if p.DealType != "" {
		filters = append(filters, "deal_type = "+quote(string(p.DealType)))
	}
	if p.PropertyType != "" {
		filters = append(filters, "property_type = "+quote(p.PropertyType))
	}
	if p.Neighborhood != "" {
		filters = append(filters, "neighborhood = "+quote(p.Neighborhood))
	}
	if p.Agency != "" {
		filters = append(filters, "agency = "+quote(p.Agency))
	}
	if p.Since != nil {
		filters = append(filters, fmt.Sprintf("collected_at >= %d", p.Since.Unix()))
	}

	return strings.Join(filters, " AND ")
}
