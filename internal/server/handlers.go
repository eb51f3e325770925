package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"boxbluebook/internal/apperr"
	"boxbluebook/internal/catalog"
	"boxbluebook/internal/pricing"
	"boxbluebook/internal/search"
)

var errUnavailable = fmt.Errorf("database not configured: %w", apperr.ErrConfigurationMissing)

type aggregateRequest struct {
	CigarID     string `json:"cigar_id" binding:"required"`
	PeriodType  string `json:"period_type" binding:"required"`
	PeriodStart string `json:"period_start" binding:"required"`
}

func (s *Server) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "database": "disabled", "search": "disabled"}

	if s.deps.Database != nil {
		if err := s.deps.Database.Ping(c.Request.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("database health check failed")
			body["database"] = "unavailable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "ok"
		}
	}
	if s.deps.Index != nil {
		if s.deps.Index.Healthy(c.Request.Context()) {
			body["search"] = "ok"
		} else {
			body["search"] = "unavailable"
		}
	}
	c.JSON(status, body)
}

func (s *Server) compare(c *gin.Context) {
	if s.deps.Comparer == nil {
		s.fail(c, errUnavailable)
		return
	}
	id, err := parseID(c.Param("cigarId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	cmp, err := s.deps.Comparer.Compare(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) aggregate(c *gin.Context) {
	if s.deps.Aggregator == nil {
		s.fail(c, errUnavailable)
		return
	}
	var req aggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, fmt.Errorf("%w: %w", apperr.ErrMalformedInput, err))
		return
	}
	id, err := parseID(req.CigarID)
	if err != nil {
		s.fail(c, err)
		return
	}
	pt, err := pricing.ParsePeriodType(req.PeriodType)
	if err != nil {
		s.fail(c, err)
		return
	}
	start, err := parseTime(req.PeriodStart)
	if err != nil {
		s.fail(c, err)
		return
	}

	agg, err := s.deps.Aggregator.Run(c.Request.Context(), id, pt, start)
	if err != nil {
		s.fail(c, err)
		return
	}
	if agg == nil {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (s *Server) scrapeCatalog(c *gin.Context) {
	if s.deps.Scraper == nil {
		s.fail(c, fmt.Errorf("scraper: %w", apperr.ErrConfigurationMissing))
		return
	}
	code := c.Param("competitor")
	products, err := s.deps.Scraper.ScrapeCatalog(c.Request.Context(), code)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"competitor": code, "count": len(products), "products": products})
}

func (s *Server) listCigars(c *gin.Context) {
	if s.deps.Catalog == nil {
		s.fail(c, errUnavailable)
		return
	}
	page, err := queryInt(c, "page")
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	f, err := catalog.ParseFilter(
		c.Query("q"), c.Query("brand_id"), c.Query("strength"), c.Query("sort_by"), c.Query("sort_order"),
		c.Query("limited") == "true", page, limit,
	)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := s.deps.Catalog.ListCigars(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) cigarDetail(c *gin.Context) {
	if s.deps.Market == nil {
		s.fail(c, errUnavailable)
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	detail, err := s.deps.Market.CigarDetail(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) priceHistory(c *gin.Context) {
	if s.deps.Market == nil {
		s.fail(c, errUnavailable)
		return
	}
	id, err := parseID(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	q := pricing.HistoryQuery{PeriodType: pricing.PeriodType(c.Query("period")), Limit: limit}
	if q.From, err = queryDate(c, "start_date"); err != nil {
		s.fail(c, err)
		return
	}
	if q.To, err = queryDate(c, "end_date"); err != nil {
		s.fail(c, err)
		return
	}

	history, err := s.deps.Market.History(c.Request.Context(), id, q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (s *Server) trends(c *gin.Context) {
	if s.deps.Market == nil {
		s.fail(c, errUnavailable)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	q, err := pricing.ParseTrendQuery(c.Query("period"), c.Query("direction"), c.Query("category"), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	out, err := s.deps.Market.Trends(c.Request.Context(), q)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) brands(c *gin.Context) {
	if s.deps.Catalog == nil {
		s.fail(c, errUnavailable)
		return
	}
	brands, err := s.deps.Catalog.ListBrands(c.Request.Context(), c.Query("include_count") == "true")
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brands": brands})
}

func (s *Server) search(c *gin.Context) {
	if s.deps.Searcher == nil {
		s.fail(c, fmt.Errorf("search: %w", apperr.ErrConfigurationMissing))
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		s.fail(c, err)
		return
	}
	typ, err := search.ParseType(c.Query("type"))
	if err != nil {
		s.fail(c, err)
		return
	}
	resp, err := s.deps.Searcher.Autocomplete(c.Request.Context(), c.Query("q"), limit, typ)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// fail maps err onto its status code. Server-side failures are logged and their detail withheld.
func (s *Server) fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && !errors.Is(err, apperr.ErrUpstreamUnavailable) && !errors.Is(err, apperr.ErrConfigurationMissing) {
		s.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("cigar id %q: %w", raw, apperr.ErrMalformedInput)
	}
	return id, nil
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q: %w", raw, apperr.ErrMalformedInput)
	}
	return t, nil
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", key, raw, apperr.ErrMalformedInput)
	}
	return n, nil
}

func queryDate(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := parseTime(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}
