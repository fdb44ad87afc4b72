package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"fno-signals/services"

	"github.com/gin-gonic/gin"
)

// AnalyticsController serves the analytics tables as JSON
type AnalyticsController struct {
	analytics *services.AnalyticsService
}

// NewAnalyticsController creates a new analytics controller
func NewAnalyticsController(analytics *services.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{
		analytics: analytics,
	}
}

// RegisterRoutes mounts every analytics endpoint on the group
func (ac *AnalyticsController) RegisterRoutes(api *gin.RouterGroup) {
	oi := api.Group("/oi")
	{
		oi.GET("/reference", ac.HandleGetReference)
		oi.GET("/breakouts", ac.HandleGetBreakouts)
		oi.GET("/journal", ac.HandleGetJournal)
	}

	straddles := api.Group("/straddles")
	{
		straddles.GET("", ac.HandleGetStraddles)
		straddles.GET("/:name/series", ac.HandleGetStraddleSeries)
	}

	basis := api.Group("/basis")
	{
		basis.GET("/current", ac.HandleGetCurrentBasis)
		basis.GET("/:symbol/daily", ac.HandleGetDailyBasis)
		basis.GET("/:symbol/intraday", ac.HandleGetIntradayBasis)
	}

	api.GET("/stocks/:symbol/explorer", ac.HandleGetStockExplorer)
	api.GET("/expiries/:underlying", ac.HandleGetExpiries)
	api.GET("/breadth", ac.HandleGetBreadth)
	api.GET("/sectors", ac.HandleGetSectors)
	api.GET("/sectors/:sector/constituents", ac.HandleGetSectorConstituents)
	api.POST("/refresh", ac.HandleRefresh)
}

// liveParam reads the live toggle; it is ignored when no quote provider is configured
func (ac *AnalyticsController) liveParam(c *gin.Context) (bool, error) {
	raw := c.DefaultQuery("live", "false")
	live, err := strconv.ParseBool(raw)
	if err != nil {
		return false, err
	}
	return live && ac.analytics.LiveEnabled(), nil
}

func respondError(c *gin.Context, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrDataUnavailable):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrExternalService):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

// HandleGetReference returns the open interest reference table
// GET /api/v1/oi/reference?live=true
func (ac *AnalyticsController) HandleGetReference(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	result, err := ac.analytics.Reference(c.Request.Context(), live)
	if err != nil {
		respondError(c, "Failed to build reference table", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetBreakouts returns the previous expiry crosses of the current session
// GET /api/v1/oi/breakouts
func (ac *AnalyticsController) HandleGetBreakouts(c *gin.Context) {
	result, err := ac.analytics.Breakouts(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to scan breakouts", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetJournal returns journaled signals
// GET /api/v1/oi/journal?symbol=RELIANCE&limit=50
func (ac *AnalyticsController) HandleGetJournal(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "limit must be a positive integer",
		})
		return
	}

	signals, err := ac.analytics.Journal(c.Request.Context(), c.Query("symbol"), limit)
	if err != nil {
		respondError(c, "Failed to read signal journal", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(signals),
		"signals": signals,
	})
}

// HandleGetStraddles returns the index and stock straddle tables
// GET /api/v1/straddles?live=true&symbols=RELIANCE,TCS
func (ac *AnalyticsController) HandleGetStraddles(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	var stocks []string
	if raw := c.Query("symbols"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				stocks = append(stocks, strings.ToUpper(s))
			}
		}
	}

	table, err := ac.analytics.StraddleTables(c.Request.Context(), live, stocks)
	if err != nil {
		respondError(c, "Failed to build straddle tables", err)
		return
	}

	c.JSON(http.StatusOK, table)
}

// HandleGetStraddleSeries returns the current-expiry series of one straddle row
// GET /api/v1/straddles/:name/series
func (ac *AnalyticsController) HandleGetStraddleSeries(c *gin.Context) {
	name := c.Param("name")

	series, err := ac.analytics.StraddleSeries(c.Request.Context(), name)
	if err != nil {
		respondError(c, "Failed to build straddle series", err)
		return
	}

	c.JSON(http.StatusOK, series)
}

// HandleGetCurrentBasis returns the live futures basis of every underlying
// GET /api/v1/basis/current?live=true
func (ac *AnalyticsController) HandleGetCurrentBasis(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	result, err := ac.analytics.CurrentBasis(c.Request.Context(), live)
	if err != nil {
		respondError(c, "Failed to compute basis", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetDailyBasis returns the historical daily basis of one underlying
// GET /api/v1/basis/:symbol/daily?months=3
func (ac *AnalyticsController) HandleGetDailyBasis(c *gin.Context) {
	months, err := strconv.Atoi(c.DefaultQuery("months", "3"))
	if err != nil || months <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "months must be a positive integer",
		})
		return
	}

	rows, err := ac.analytics.DailyBasis(c.Request.Context(), c.Param("symbol"), months)
	if err != nil {
		respondError(c, "Failed to compute daily basis", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol": strings.ToUpper(c.Param("symbol")),
		"rows":   rows,
	})
}

// HandleGetIntradayBasis returns today's spot and futures series of one underlying
// GET /api/v1/basis/:symbol/intraday
func (ac *AnalyticsController) HandleGetIntradayBasis(c *gin.Context) {
	result, err := ac.analytics.IntradayBasis(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, "Failed to compute intraday basis", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetStockExplorer returns the windowed history of one stock against NIFTY 50
// GET /api/v1/stocks/:symbol/explorer?days=30
func (ac *AnalyticsController) HandleGetStockExplorer(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "days must be a positive integer",
		})
		return
	}
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	explorer, err := ac.analytics.StockExplorer(c.Request.Context(), c.Param("symbol"), days, live)
	if err != nil {
		respondError(c, "Failed to build stock explorer", err)
		return
	}

	c.JSON(http.StatusOK, explorer)
}

// HandleGetExpiries returns the front, back and far futures of an underlying
// GET /api/v1/expiries/:underlying
func (ac *AnalyticsController) HandleGetExpiries(c *gin.Context) {
	underlying := strings.ToUpper(c.Param("underlying"))

	buckets, warnings := ac.analytics.Expiries(c.Request.Context(), underlying)

	c.JSON(http.StatusOK, gin.H{
		"underlying": underlying,
		"front":      buckets.Front,
		"back":       buckets.Back,
		"far":        buckets.Far,
		"expiries":   buckets.Expiries,
		"warnings":   warnings,
	})
}

// HandleGetBreadth returns daily market breadth
// GET /api/v1/breadth?live=true
func (ac *AnalyticsController) HandleGetBreadth(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	days, err := ac.analytics.Breadth(c.Request.Context(), live)
	if err != nil {
		respondError(c, "Failed to compute breadth", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"spans": services.EMASpans,
		"days":  days,
	})
}

// HandleGetSectors returns official and equal-weight sector strength
// GET /api/v1/sectors?live=true
func (ac *AnalyticsController) HandleGetSectors(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	result, err := ac.analytics.Sectors(c.Request.Context(), live)
	if err != nil {
		respondError(c, "Failed to compute sector returns", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetSectorConstituents returns the strength of each constituent of a sector
// GET /api/v1/sectors/:sector/constituents?live=true
func (ac *AnalyticsController) HandleGetSectorConstituents(c *gin.Context) {
	live, err := ac.liveParam(c)
	if err != nil {
		badRequest(c, "Invalid live flag", err)
		return
	}

	sector := c.Param("sector")
	rows, err := ac.analytics.SectorConstituents(c.Request.Context(), sector, live)
	if err != nil {
		respondError(c, "Failed to compute constituent returns", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sector": sector,
		"rows":   rows,
	})
}

// HandleRefresh drops every cached table
// POST /api/v1/refresh
func (ac *AnalyticsController) HandleRefresh(c *gin.Context) {
	generation := ac.analytics.Refresh()

	c.JSON(http.StatusOK, gin.H{
		"message":    "Cache cleared",
		"generation": generation,
	})
}
