package consumption

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/aggregation"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
)

// SeriesQuery is shared by every bucketed operation.
type SeriesQuery struct {
	Type reading.Type
	// Field is the cumulative counter to difference. Default "value".
	Field       string
	Window      aggregation.Window
	Granularity bucket.Granularity
	// Week is the week-numbering convention. Empty means the service default.
	Week bucket.WeekConvention
}

type SiteStatsRequest struct {
	SiteID string
	SeriesQuery
}

type DeviceStatsRequest struct {
	SiteID   string
	DeviceID string
	// Metric switches to mean mode over an instantaneous field.
	Metric string
	SeriesQuery
}

type GlobalRequest struct {
	SiteIDs []string
	SeriesQuery
}

type DeviceCompareRequest struct {
	SiteID string
	// DeviceIDs restricts the comparison when non-empty.
	DeviceIDs []string
	SeriesQuery
}

type RawRequest struct {
	SiteID   string
	Type     reading.Type
	DeviceID string
	// Range, when set, overrides From/To.
	Range string
	From  time.Time
	To    time.Time
	Limit int64
	Sort  string
}

type HistoricalRequest struct {
	SiteID   string
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int64
}

type ExportRequest struct {
	SiteID   string
	DeviceID string
	From     time.Time
	To       time.Time
	Limit    int64
	Offset   int64
}

// PeriodIndex is one bucket of a single-site series.
type PeriodIndex struct {
	Period     string          `json:"period"`
	TotalIndex decimal.Decimal `json:"totalIndex"`
}

type IndexResult struct {
	TotalIndex decimal.Decimal `json:"totalIndex"`
}

// DeviceStat carries TotalIndex in delta mode and Value in mean mode.
type DeviceStat struct {
	Period     string           `json:"period"`
	TotalIndex *decimal.Decimal `json:"totalIndex,omitempty"`
	Value      *decimal.Decimal `json:"value,omitempty"`
	Count      int64            `json:"count"`
	Avg        *decimal.Decimal `json:"avg,omitempty"`
	Min        *decimal.Decimal `json:"min,omitempty"`
	Max        *decimal.Decimal `json:"max,omitempty"`
}

type PeriodTotal struct {
	Period string          `json:"period"`
	Total  decimal.Decimal `json:"total"`
}

type PeriodValue struct {
	Period string          `json:"period"`
	Value  decimal.Decimal `json:"value"`
}

type SiteSeries struct {
	SiteID   string        `json:"siteId"`
	SiteName string        `json:"siteName"`
	Values   []PeriodValue `json:"values"`
}

type DeviceSeries struct {
	DeviceID   string        `json:"deviceId"`
	DeviceName string        `json:"deviceName"`
	Values     []PeriodValue `json:"values"`
}

// DeviceInfo is the directory view of a device echoed in responses.
type DeviceInfo struct {
	DeviceID        string       `json:"deviceId"`
	Name            string       `json:"name"`
	Type            reading.Type `json:"type"`
	SiteID          string       `json:"siteId"`
	Status          string       `json:"status,omitempty"`
	Threshold       *float64     `json:"threshold,omitempty"`
	ReadingInterval int          `json:"readingInterval,omitempty"`
}

func deviceInfo(d storage.Device) DeviceInfo {
	return DeviceInfo{
		DeviceID:        d.DeviceID,
		Name:            d.Name,
		Type:            d.Type,
		SiteID:          d.SiteID,
		Status:          d.Status,
		Threshold:       d.Threshold,
		ReadingInterval: d.ReadingInterval,
	}
}

type RawQueryInfo struct {
	Range        string     `json:"range,omitempty"`
	From         *time.Time `json:"from"`
	To           *time.Time `json:"to"`
	OriginalFrom *time.Time `json:"originalFrom"`
	OriginalTo   *time.Time `json:"originalTo"`
	Limit        int64      `json:"limit"`
	Sort         string     `json:"sort"`
	TotalCount   int64      `json:"totalCount"`
}

type RawResult struct {
	Device DeviceInfo         `json:"device"`
	Query  RawQueryInfo       `json:"query"`
	Data   []reading.Document `json:"data"`
}

// ChartPoint is a historical reading shaped for plotting.
type ChartPoint struct {
	Timestamp   time.Time        `json:"timestamp"`
	Value       decimal.Decimal  `json:"value"`
	Unit        string           `json:"unit"`
	FlowRate    *decimal.Decimal `json:"flowRate,omitempty"`
	Pressure    *decimal.Decimal `json:"pressure,omitempty"`
	Temperature *decimal.Decimal `json:"temperature,omitempty"`
	Humidity    *decimal.Decimal `json:"humidity,omitempty"`
	Power       *decimal.Decimal `json:"power,omitempty"`
}

type HistoricalQueryInfo struct {
	From  *time.Time `json:"from"`
	To    *time.Time `json:"to"`
	Limit int64      `json:"limit"`
	Count int        `json:"count"`
}

type HistoricalResult struct {
	Device DeviceInfo          `json:"device"`
	Query  HistoricalQueryInfo `json:"query"`
	Data   []ChartPoint        `json:"data"`
}

type ExportQueryInfo struct {
	From          *time.Time `json:"from"`
	To            *time.Time `json:"to"`
	Limit         int64      `json:"limit"`
	Offset        int64      `json:"offset"`
	TotalCount    int64      `json:"totalCount"`
	ReturnedCount int        `json:"returnedCount"`
	HasMore       bool       `json:"hasMore"`
}

type ExportResult struct {
	Device DeviceInfo         `json:"device"`
	Query  ExportQueryInfo    `json:"query"`
	Data   []reading.Document `json:"data"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
