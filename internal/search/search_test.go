package search

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imovel-monitor/internal/models"
)

func TestBuildFilter(t *testing.T) {
	since := time.Unix(1714543200, 0)
	tests := []struct {
		name   string
		params SearchParams
		want   string
	}{
		{"defaults", SearchParams{}, "active = true"},
		{
			"all fields",
			SearchParams{DealType: models.DealTypeRent, PropertyType: "Casa", Neighborhood: "Efapi", Agency: "Plaza Chapecó", Since: &since},
			`active = true AND deal_type = "RENT" AND property_type = "Casa" AND neighborhood = "Efapi" AND agency = "Plaza Chapecó" AND collected_at >= 1714543200`,
		},
		{"quotes escaped", SearchParams{Neighborhood: `Jardim "Itália"`}, `active = true AND neighborhood = "Jardim \"Itália\""`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildFilter(tt.params))
		})
	}
}

func TestSearchParamsLimit(t *testing.T) {
	assert.Equal(t, int64(20), SearchParams{}.limit())
	assert.Equal(t, int64(5), SearchParams{Limit: 5}.limit())
	assert.Equal(t, int64(200), SearchParams{Limit: 1000}.limit())
}

func TestDocumentRoundTrip(t *testing.T) {
	collected := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)
	l := models.NewListing(models.ListingRecord{
		Agency: "Formiga Imóveis", ExternalCode: "4521", DealType: models.DealTypeSale,
		Title: "Apartamento com 2 quartos", Price: "R$ 450.000,00", Neighborhood: "Centro",
	}, collected)
	l.ID = "abc"

	doc := NewDocument(l)
	assert.Equal(t, "SALE", doc.DealType)
	assert.Equal(t, collected.Unix(), doc.CollectedAt)
	assert.Equal(t, l, doc.Listing())
}

func TestSearchDecodesHits(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/indexes/listings/search" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"hits": [{"id":"abc","agency":"Plaza Chapecó","external_code":"202","deal_type":"RENT",
				"title":"Casa no Efapi","neighborhood":"Efapi","active":true,"collected_at":1714543200}],
			"estimatedTotalHits": 1,
			"processingTimeMs": 3,
			"query": "casa",
			"limit": 20,
			"offset": 0
		}`))
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL, "", "")
	result, err := client.Search(SearchParams{Query: "casa", DealType: models.DealTypeRent})
	require.NoError(t, err)

	require.Len(t, result.Hits, 1)
	hit := result.Hits[0]
	assert.Equal(t, "abc", hit.ID)
	assert.Equal(t, models.DealTypeRent, hit.DealType)
	assert.Equal(t, "Efapi", hit.Neighborhood)
	assert.Equal(t, int64(1), result.TotalHits)

	assert.Equal(t, "casa", gotBody["q"])
	assert.Equal(t, `active = true AND deal_type = "RENT"`, gotBody["filter"])
}

func TestIndexListingsSkipsEmptyBatch(t *testing.T) {
	client := NewSearchClient("http://127.0.0.1:1", "", "")
	assert.NoError(t, client.IndexListings(nil))
}
