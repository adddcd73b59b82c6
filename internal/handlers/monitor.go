package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"imovel-monitor/internal/database"
	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/models"
	"imovel-monitor/internal/scheduler"
	"imovel-monitor/internal/search"
)

var logger = logging.New("API")

const (
	defaultListLimit = 50
	maxListLimit     = 200
	runHistoryLimit  = 20
	newListingWindow = 24 * time.Hour
)

// RunController starts runs and reports on them
type RunController interface {
	TriggerRun() (bool, error)
	GetRunStatus() scheduler.RunStatus
}

// Searcher is the full-text index behind /busca
type Searcher interface {
	Search(params search.SearchParams) (*search.SearchResult, error)
	RemoveListing(id string) error
}

// MonitorHandler serves the listing monitor API
type MonitorHandler struct {
	repo   database.Repository
	runs   RunController
	search Searcher
	now    func() time.Time
}

// NewMonitorHandler creates a handler; searcher may be nil when search is disabled
func NewMonitorHandler(repo database.Repository, runs RunController, searcher Searcher) *MonitorHandler {
	return &MonitorHandler{
		repo:   repo,
		runs:   runs,
		search: searcher,
		now:    time.Now,
	}
}

// TriggerRun starts a monitoring run in the background
func (h *MonitorHandler) TriggerRun(c *gin.Context) {
	logger.Infof("Manual monitoring run requested from %s", c.ClientIP())

	_, err := h.runs.TriggerRun()
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{
			"status": "error",
			"error":  "Monitoring run already in progress",
		})
		return
	case err != nil:
		logger.Errorf("Failed to start monitoring run: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"message": "Monitoring run started",
	})
}

// GetRunStatus reports whether a run is in flight and how the last one ended
func (h *MonitorHandler) GetRunStatus(c *gin.Context) {
	status := h.runs.GetRunStatus()

	lastRun, err := h.repo.LastRun(c.Request.Context())
	if err != nil {
		logger.Warnf("Failed to load last run: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"running":      status.Running,
		"started_at":   status.StartedAt,
		"last_outcome": status.LastOutcome,
		"last_run":     lastRun,
	})
}

// ListListings returns active listings, newest first
func (h *MonitorHandler) ListListings(c *gin.Context) {
	filters, err := h.listingFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, err := parseLimit(c.Query("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	listings, err := h.repo.List(c.Request.Context(), filters, limit)
	if err != nil {
		logger.Errorf("Failed to list listings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    len(listings),
		"listings": listings,
	})
}

type agencyCount struct {
	Agency string `json:"agency"`
	Total  int64  `json:"total"`
}

// GetStats returns counts over active listings
func (h *MonitorHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.repo.Count(ctx, database.ListingFilters{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	rent, err := h.repo.Count(ctx, database.ListingFilters{DealType: models.DealTypeRent})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sale, err := h.repo.Count(ctx, database.ListingFilters{DealType: models.DealTypeSale})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	since := h.now().Add(-newListingWindow)
	fresh, err := h.repo.Count(ctx, database.ListingFilters{Since: &since})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	perAgency, err := h.repo.CountByAgency(ctx, database.ListingFilters{})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	byAgency := make([]agencyCount, 0, len(perAgency))
	for agency, n := range perAgency {
		byAgency = append(byAgency, agencyCount{Agency: agency, Total: n})
	}
	sort.Slice(byAgency, func(i, j int) bool {
		if byAgency[i].Total != byAgency[j].Total {
			return byAgency[i].Total > byAgency[j].Total
		}
		return byAgency[i].Agency < byAgency[j].Agency
	})

	lastRun, err := h.repo.LastRun(ctx)
	if err != nil {
		logger.Warnf("Failed to load last run: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"total_active": total,
		"rent":         rent,
		"sale":         sale,
		"new_last_24h": fresh,
		"by_agency":    byAgency,
		"last_run":     lastRun,
	})
}

// ListRuns returns the most recent run records
func (h *MonitorHandler) ListRuns(c *gin.Context) {
	runs, err := h.repo.ListRuns(c.Request.Context(), runHistoryLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// Search runs a full-text query against the search index
func (h *MonitorHandler) Search(c *gin.Context) {
	if h.search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Search is not configured"})
		return
	}

	filters, err := h.listingFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, err := parseLimit(c.Query("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.search.Search(search.SearchParams{
		Query:        c.Query("q"),
		DealType:     filters.DealType,
		PropertyType: filters.PropertyType,
		Neighborhood: filters.Neighborhood,
		Agency:       filters.Agency,
		Since:        filters.Since,
		Limit:        int64(limit),
	})
	if err != nil {
		logger.Errorf("Search failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeactivateListing soft-deletes a listing
func (h *MonitorHandler) DeactivateListing(c *gin.Context) {
	id := c.Param("id")

	err := h.repo.Deactivate(c.Request.Context(), id, h.now())
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.search != nil {
		if err := h.search.RemoveListing(id); err != nil {
			logger.Warnf("Failed to remove listing %s from search: %v", id, err)
		}
	}

	logger.Infof("Listing %s deactivated", id)
	c.JSON(http.StatusOK, gin.H{"id": id, "active": false})
}

// Health reports liveness
func (h *MonitorHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.now(),
	})
}

// listingFilters reads the query filters shared by /imoveis and /busca.
// "Todos"/"Todas" mean no filter, as the frontend sends them.
func (h *MonitorHandler) listingFilters(c *gin.Context) (database.ListingFilters, error) {
	var f database.ListingFilters

	if v := filterParam(c, "tipo_negocio"); v != "" {
		dt, ok := models.ParseDealType(v)
		if !ok {
			return f, errors.New("invalid tipo_negocio: " + v)
		}
		f.DealType = dt
	}
	f.PropertyType = filterParam(c, "tipo_imovel")
	f.Neighborhood = filterParam(c, "bairro")
	f.Agency = filterParam(c, "imobiliaria")

	if v := c.Query("apenas_novos"); v != "" {
		onlyNew, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("invalid apenas_novos: " + v)
		}
		if onlyNew {
			since := h.now().Add(-newListingWindow)
			f.Since = &since
		}
	}
	return f, nil
}

func filterParam(c *gin.Context, name string) string {
	v := strings.TrimSpace(c.Query(name))
	switch strings.ToLower(v) {
	case "todos", "todas":
		return ""
	}
	return v
}

func parseLimit(raw string, def, maxLimit int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit: " + raw)
	}
	return min(n, maxLimit), nil
}
