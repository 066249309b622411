package consumption

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/aggregation"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
)

const (
	HeaderSitesSkipped = "X-Sites-Skipped"
	HeaderSitesFailed  = "X-Sites-Failed"
)

func init() {
	// Decimals render as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

// RegisterRoutes registers all consumption API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	site := r.Group("/v1/sites/:site_id")
	site.GET("/devices", s.HandleSiteDevices)
	site.GET("/devices/:device_id/historical", s.HandleDeviceHistorical)
	site.GET("/devices/:device_id/export", s.HandleDeviceExport)

	readings := site.Group("/readings/:type")
	readings.POST("/stats", s.HandleSiteStats)
	readings.POST("/index", s.HandleSiteIndex)
	readings.POST("/compare", s.HandleSiteDeviceCompare)
	readings.GET("/devices/:device_id/stats", s.HandleDeviceStats)
	readings.GET("/devices/:device_id/raw", s.HandleDeviceRaw)

	global := r.Group("/v1/global/:type")
	global.POST("/stats", s.HandleGlobalStats)
	global.POST("/index", s.HandleGlobalIndex)
	global.POST("/compare", s.HandleGlobalCompare)
}

// seriesParams are the query parameters of the single-site series routes.
type seriesParams struct {
	Field       string `form:"field"`
	Metric      string `form:"metric"`
	From        string `form:"from"`
	To          string `form:"to"`
	Granularity string `form:"granularity"`
	Week        string `form:"week"`
}

// seriesBody is the JSON body of the compare and global routes.
type seriesBody struct {
	SiteIDs     []string `json:"siteIds"`
	DeviceIDs   []string `json:"deviceIds"`
	Field       string   `json:"field"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Granularity string   `json:"granularity"`
	Week        string   `json:"week"`
}

// HandleSiteStats handles POST /v1/sites/:site_id/readings/:type/stats
// Query parameters: field, from, to, granularity, week
func (s *Service) HandleSiteStats(c *gin.Context) {
	q, ok := bindSeriesQuery(c)
	if !ok {
		return
	}
	resp, err := s.SiteStats(c.Request.Context(), SiteStatsRequest{SiteID: c.Param("site_id"), SeriesQuery: q})
	if err != nil {
		respondError(c, err, "Failed to compute site stats")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSiteIndex handles POST /v1/sites/:site_id/readings/:type/index
// Query parameters: field
func (s *Service) HandleSiteIndex(c *gin.Context) {
	resp, err := s.SiteIndex(c.Request.Context(), c.Param("site_id"), reading.Type(c.Param("type")), c.Query("field"))
	if err != nil {
		respondError(c, err, "Failed to compute site index")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeviceStats handles GET /v1/sites/:site_id/readings/:type/devices/:device_id/stats
// Query parameters: field | metric, from, to, granularity, week
func (s *Service) HandleDeviceStats(c *gin.Context) {
	var params seriesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondInvalid(c, "Invalid query parameters", err)
		return
	}
	if params.Metric != "" && params.Field != "" {
		respondInvalid(c, "Invalid query parameters", "field and metric are mutually exclusive")
		return
	}
	q, err := params.query(c.Param("type"))
	if err != nil {
		respondError(c, err, "Invalid query parameters")
		return
	}

	resp, err := s.DeviceStats(c.Request.Context(), DeviceStatsRequest{
		SiteID:      c.Param("site_id"),
		DeviceID:    c.Param("device_id"),
		Metric:      params.Metric,
		SeriesQuery: q,
	})
	if err != nil {
		respondError(c, err, "Failed to compute device stats")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeviceRaw handles GET /v1/sites/:site_id/readings/:type/devices/:device_id/raw
// Query parameters: range | from, to, limit, sort
func (s *Service) HandleDeviceRaw(c *gin.Context) {
	var query struct {
		Range string `form:"range"`
		From  string `form:"from"`
		To    string `form:"to"`
		Limit int64  `form:"limit"`
		Sort  string `form:"sort"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalid(c, "Invalid query parameters", err)
		return
	}
	window, err := parseWindow(query.From, query.To)
	if err != nil {
		respondError(c, err, "Invalid query parameters")
		return
	}

	resp, err := s.DeviceRaw(c.Request.Context(), RawRequest{
		SiteID:   c.Param("site_id"),
		Type:     reading.Type(c.Param("type")),
		DeviceID: c.Param("device_id"),
		Range:    query.Range,
		From:     window.From,
		To:       window.To,
		Limit:    query.Limit,
		Sort:     query.Sort,
	})
	if err != nil {
		respondError(c, err, "Failed to fetch raw readings")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeviceHistorical handles GET /v1/sites/:site_id/devices/:device_id/historical
// Query parameters: from, to, limit
func (s *Service) HandleDeviceHistorical(c *gin.Context) {
	var query struct {
		From  string `form:"from"`
		To    string `form:"to"`
		Limit int64  `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalid(c, "Invalid query parameters", err)
		return
	}
	window, err := parseWindow(query.From, query.To)
	if err != nil {
		respondError(c, err, "Invalid query parameters")
		return
	}

	resp, err := s.DeviceHistorical(c.Request.Context(), HistoricalRequest{
		SiteID:   c.Param("site_id"),
		DeviceID: c.Param("device_id"),
		From:     window.From,
		To:       window.To,
		Limit:    query.Limit,
	})
	if err != nil {
		respondError(c, err, "Failed to fetch historical readings")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleDeviceExport handles GET /v1/sites/:site_id/devices/:device_id/export
// Query parameters: from, to, limit, offset
func (s *Service) HandleDeviceExport(c *gin.Context) {
	var query struct {
		From   string `form:"from"`
		To     string `form:"to"`
		Limit  int64  `form:"limit"`
		Offset int64  `form:"offset"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		respondInvalid(c, "Invalid query parameters", err)
		return
	}
	window, err := parseWindow(query.From, query.To)
	if err != nil {
		respondError(c, err, "Invalid query parameters")
		return
	}

	resp, err := s.DeviceExport(c.Request.Context(), ExportRequest{
		SiteID:   c.Param("site_id"),
		DeviceID: c.Param("device_id"),
		From:     window.From,
		To:       window.To,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
	if err != nil {
		respondError(c, err, "Failed to export readings")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSiteDevices handles GET /v1/sites/:site_id/devices
// Query parameters: type
func (s *Service) HandleSiteDevices(c *gin.Context) {
	var typ reading.Type
	if raw := c.Query("type"); raw != "" {
		parsed, err := reading.ParseType(raw)
		if err != nil {
			respondInvalid(c, "Invalid query parameters", err)
			return
		}
		typ = parsed
	}

	resp, err := s.ListSiteDevices(c.Request.Context(), c.Param("site_id"), typ)
	if err != nil {
		respondError(c, err, "Failed to list devices")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSiteDeviceCompare handles POST /v1/sites/:site_id/readings/:type/compare
func (s *Service) HandleSiteDeviceCompare(c *gin.Context) {
	body, q, ok := bindSeriesBody(c)
	if !ok {
		return
	}
	resp, err := s.SiteDeviceCompare(c.Request.Context(), DeviceCompareRequest{
		SiteID:      c.Param("site_id"),
		DeviceIDs:   body.DeviceIDs,
		SeriesQuery: q,
	})
	if err != nil {
		respondError(c, err, "Failed to compare devices")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGlobalStats handles POST /v1/global/:type/stats
func (s *Service) HandleGlobalStats(c *gin.Context) {
	body, q, ok := bindSeriesBody(c)
	if !ok {
		return
	}
	resp, report, err := s.GlobalStats(c.Request.Context(), GlobalRequest{SiteIDs: body.SiteIDs, SeriesQuery: q})
	setReportHeaders(c, report)
	if err != nil {
		respondError(c, err, "Failed to compute global stats")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGlobalIndex handles POST /v1/global/:type/index
func (s *Service) HandleGlobalIndex(c *gin.Context) {
	body, q, ok := bindSeriesBody(c)
	if !ok {
		return
	}
	resp, report, err := s.GlobalIndex(c.Request.Context(), GlobalRequest{SiteIDs: body.SiteIDs, SeriesQuery: q})
	setReportHeaders(c, report)
	if err != nil {
		respondError(c, err, "Failed to compute global index")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGlobalCompare handles POST /v1/global/:type/compare
func (s *Service) HandleGlobalCompare(c *gin.Context) {
	body, q, ok := bindSeriesBody(c)
	if !ok {
		return
	}
	resp, report, err := s.GlobalCompare(c.Request.Context(), GlobalRequest{SiteIDs: body.SiteIDs, SeriesQuery: q})
	setReportHeaders(c, report)
	if err != nil {
		respondError(c, err, "Failed to compare sites")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func bindSeriesQuery(c *gin.Context) (SeriesQuery, bool) {
	var params seriesParams
	if err := c.ShouldBindQuery(&params); err != nil {
		respondInvalid(c, "Invalid query parameters", err)
		return SeriesQuery{}, false
	}
	q, err := params.query(c.Param("type"))
	if err != nil {
		respondError(c, err, "Invalid query parameters")
		return SeriesQuery{}, false
	}
	return q, true
}

func bindSeriesBody(c *gin.Context) (seriesBody, SeriesQuery, bool) {
	var body seriesBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondInvalid(c, "Invalid JSON payload", err)
		return body, SeriesQuery{}, false
	}
	params := seriesParams{
		Field:       body.Field,
		From:        body.From,
		To:          body.To,
		Granularity: body.Granularity,
		Week:        body.Week,
	}
	q, err := params.query(c.Param("type"))
	if err != nil {
		respondError(c, err, "Invalid request body")
		return body, SeriesQuery{}, false
	}
	return body, q, true
}

func (p seriesParams) query(typ string) (SeriesQuery, error) {
	window, err := parseWindow(p.From, p.To)
	if err != nil {
		return SeriesQuery{}, err
	}
	return SeriesQuery{
		Type:        reading.Type(typ),
		Field:       p.Field,
		Window:      window,
		Granularity: bucket.Granularity(p.Granularity),
		Week:        bucket.WeekConvention(p.Week),
	}, nil
}

// parseWindow accepts ISO 8601 instants or epoch milliseconds.
func parseWindow(from, to string) (aggregation.Window, error) {
	var w aggregation.Window
	var err error
	if w.From, err = parseInstant("from", from); err != nil {
		return w, err
	}
	if w.To, err = parseInstant("to", to); err != nil {
		return w, err
	}
	return w, nil
}

func parseInstant(name, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := timestamp.ParseISO(s)
	if err != nil {
		return time.Time{}, apperr.Errorf(apperr.KindValidation, "parseWindow", "invalid %s %q", name, s)
	}
	return t, nil
}

func setReportHeaders(c *gin.Context, r Report) {
	if len(r.Skipped) > 0 {
		c.Header(HeaderSitesSkipped, strings.Join(r.Skipped, ","))
	}
	if len(r.Failed) > 0 {
		c.Header(HeaderSitesFailed, strings.Join(r.FailedIDs(), ","))
	}
}

func respondError(c *gin.Context, err error, message string) {
	c.JSON(apperr.HTTPStatus(apperr.KindOf(err)), apperr.Response(err, message))
}

func respondInvalid(c *gin.Context, message string, details interface{}) {
	if err, ok := details.(error); ok {
		details = err.Error()
	}
	c.JSON(http.StatusBadRequest, apperr.ErrorResponse{
		ErrorType: apperr.HttpInvalidRequestError,
		Message:   message,
		Details:   details,
	})
}
