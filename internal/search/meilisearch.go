package search

import (
	"encoding/json"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"imovel-monitor/internal/models"
)

// DefaultIndex is the index listings are written to
const DefaultIndex = "listings"

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    host,
		APIKey:  apiKey,
		Timeout: 10 * time.Second,
	})
	if index == "" {
		index = DefaultIndex
	}

	return &SearchClient{
		client: client,
		index:  index,
	}
}

// InitIndex initializes the Meilisearch index
func (s *SearchClient) InitIndex() error {
	// Create index if it doesn't exist
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	// Ignore error if index already exists
	if err != nil && err.Error() != "index already exists" {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSearchableAttributes(&[]string{
		"title",
		"neighborhood",
		"address",
		"property_type",
		"agency",
		"external_code",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateFilterableAttributes(&[]string{
		"deal_type",
		"property_type",
		"neighborhood",
		"agency",
		"active",
		"collected_at",
	})
	if err != nil {
		return err
	}

	_, err = s.client.Index(s.index).UpdateSortableAttributes(&[]string{
		"collected_at",
	})
	return err
}

// Document is the indexed form of a listing. collected_at is a unix
// timestamp so it can be filtered and sorted numerically.
type Document struct {
	ID            string `json:"id"`
	Agency        string `json:"agency"`
	ExternalCode  string `json:"external_code"`
	DealType      string `json:"deal_type"`
	Title         string `json:"title"`
	PropertyType  string `json:"property_type"`
	Price         string `json:"price"`
	Area          string `json:"area"`
	Bedrooms      string `json:"bedrooms"`
	Bathrooms     string `json:"bathrooms"`
	ParkingSpaces string `json:"parking_spaces"`
	Address       string `json:"address"`
	Neighborhood  string `json:"neighborhood"`
	URL           string `json:"url"`
	Active        bool   `json:"active"`
	CollectedAt   int64  `json:"collected_at"`
}

// NewDocument converts a stored listing to its index document
func NewDocument(l models.Listing) Document {
	return Document{
		ID:            l.ID,
		Agency:        l.Agency,
		ExternalCode:  l.ExternalCode,
		DealType:      string(l.DealType),
		Title:         l.Title,
		PropertyType:  l.PropertyType,
		Price:         l.Price,
		Area:          l.Area,
		Bedrooms:      l.Bedrooms,
		Bathrooms:     l.Bathrooms,
		ParkingSpaces: l.ParkingSpaces,
		Address:       l.Address,
		Neighborhood:  l.Neighborhood,
		URL:           l.URL,
		Active:        l.Active,
		CollectedAt:   l.CollectedAt.Unix(),
	}
}

// Listing converts the document back to a listing
func (d Document) Listing() models.Listing {
	return models.Listing{
		ID:            d.ID,
		Agency:        d.Agency,
		ExternalCode:  d.ExternalCode,
		DealType:      models.DealType(d.DealType),
		Title:         d.Title,
		PropertyType:  d.PropertyType,
		Price:         d.Price,
		Area:          d.Area,
		Bedrooms:      d.Bedrooms,
		Bathrooms:     d.Bathrooms,
		ParkingSpaces: d.ParkingSpaces,
		Address:       d.Address,
		Neighborhood:  d.Neighborhood,
		URL:           d.URL,
		Active:        d.Active,
		CollectedAt:   time.Unix(d.CollectedAt, 0).UTC(),
	}
}

// IndexListings indexes multiple listings
func (s *SearchClient) IndexListings(listings []models.Listing) error {
	if len(listings) == 0 {
		return nil
	}
	docs := make([]Document, 0, len(listings))
	for _, l := range listings {
		docs = append(docs, NewDocument(l))
	}
	_, err := s.client.Index(s.index).AddDocuments(docs, "id")
	return err
}

// RemoveListing drops a listing from the index
func (s *SearchClient) RemoveListing(id string) error {
	_, err := s.client.Index(s.index).DeleteDocument(id)
	return err
}

// SearchResult represents search results
type SearchResult struct {
	Hits           []models.Listing `json:"hits"`
	TotalHits      int64            `json:"total_hits"`
	ProcessingTime int64            `json:"processing_time_ms"`
}

// Search runs a full-text query narrowed by params
func (s *SearchClient) Search(params SearchParams) (*SearchResult, error) {
	searchReq := &meilisearch.SearchRequest{
		Limit: params.limit(),
		Sort:  []string{"collected_at:desc"},
	}
	if filter := BuildFilter(params); filter != "" {
		searchReq.Filter = filter
	}

	searchRes, err := s.client.Index(s.index).Search(params.Query, searchReq)
	if err != nil {
		return nil, err
	}

	listings := make([]models.Listing, 0, len(searchRes.Hits))
	for _, hit := range searchRes.Hits {
		l, ok := parseListingFromHit(hit)
		if !ok {
			continue
		}
		listings = append(listings, l)
	}

	return &SearchResult{
		Hits:           listings,
		TotalHits:      searchRes.EstimatedTotalHits,
		ProcessingTime: searchRes.ProcessingTimeMs,
	}, nil
}

// parseListingFromHit converts a search hit to a Listing
func parseListingFromHit(hit interface{}) (models.Listing, bool) {
	hitJSON, err := json.Marshal(hit)
	if err != nil {
		return models.Listing{}, false
	}
	var doc Document
	if err := json.Unmarshal(hitJSON, &doc); err != nil {
		return models.Listing{}, false
	}
	return doc.Listing(), true
}
