package consumption

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/aggregation"
	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/tenant"
)

const (
	defaultRawLimit        = 100
	defaultHistoricalLimit = 1_000_000
	defaultExportLimit     = 1_000_000
	fallbackRange          = "24h"

	sortAsc  = "asc"
	sortDesc = "desc"
)

// rawRanges are the relative ranges a raw query accepts.
var rawRanges = map[string]bool{
	"1h": true, "6h": true, "12h": true, "24h": true,
	"1d": true, "7d": true, "30d": true, "90d": true,
}

// resolveRange maps a relative range to [now − range, end of today]. Unknown
// ranges fall back to 24h.
func resolveRange(r string, now time.Time) (string, aggregation.Window) {
	if !rawRanges[r] {
		slog.Warn("[Consumption] Unknown range, falling back", "range", r, "fallback", fallbackRange)
		r = fallbackRange
	}
	d, err := aggregation.ParseRange(r)
	if err != nil {
		d = 24 * time.Hour
	}
	return r, aggregation.Window{From: now.Add(-d), To: aggregation.EndOfDay(now)}
}

// DeviceRaw returns the raw documents of one device, newest first by default.
func (s *Service) DeviceRaw(ctx context.Context, req RawRequest) (*RawResult, error) {
	const op = "deviceRaw"

	typ, err := reading.ParseType(string(req.Type))
	if err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}

	sortOrder := strings.ToLower(strings.TrimSpace(req.Sort))
	switch sortOrder {
	case "":
		sortOrder = sortDesc
	case sortAsc, sortDesc:
	default:
		return nil, apperr.Errorf(apperr.KindValidation, op, "sort must be asc or desc, got %q", req.Sort)
	}

	limit := req.Limit
	if limit < 0 {
		return nil, apperr.Errorf(apperr.KindValidation, op, "limit must not be negative")
	}
	if limit == 0 {
		limit = defaultRawLimit
	}

	window := aggregation.Window{From: req.From, To: req.To}
	rangeName := ""
	if req.Range != "" {
		rangeName, window = resolveRange(req.Range, s.nowFn())
	}
	if err := window.Validate(); err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}

	device, err := s.deviceOfType(ctx, op, req.DeviceID, req.SiteID, typ)
	if err != nil {
		return nil, err
	}

	query := storage.DocumentQuery{
		Collection: typ.Collection(),
		DeviceID:   device.DeviceID,
		From:       window.From,
		To:         window.To,
		Ascending:  sortOrder == sortAsc,
		Limit:      limit,
	}

	var (
		docs  []reading.Document
		total int64
	)
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		var qErr error
		if total, qErr = sess.CountDocuments(ctx, query); qErr != nil {
			return qErr
		}
		docs, qErr = sess.Documents(ctx, query)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []reading.Document{}
	}

	return &RawResult{
		Device: deviceInfo(device),
		Query: RawQueryInfo{
			Range:        rangeName,
			From:         timePtr(window.From),
			To:           timePtr(window.To),
			OriginalFrom: timePtr(req.From),
			OriginalTo:   timePtr(req.To),
			Limit:        limit,
			Sort:         sortOrder,
			TotalCount:   total,
		},
		Data: docs,
	}, nil
}

// DeviceHistorical returns a device's readings in ascending order shaped as
// chart points. The device's type selects the collection.
func (s *Service) DeviceHistorical(ctx context.Context, req HistoricalRequest) (*HistoricalResult, error) {
	const op = "deviceHistorical"

	limit, err := defaultedLimit(op, req.Limit, defaultHistoricalLimit)
	if err != nil {
		return nil, err
	}
	window := aggregation.Window{From: req.From, To: req.To}
	if err := window.Validate(); err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}

	device, err := s.device(ctx, op, req.DeviceID, req.SiteID)
	if err != nil {
		return nil, err
	}

	var docs []reading.Document
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		var qErr error
		docs, qErr = sess.Documents(ctx, storage.DocumentQuery{
			Collection: device.Type.Collection(),
			DeviceID:   device.DeviceID,
			From:       window.From,
			To:         window.To,
			Ascending:  true,
			Limit:      limit,
		})
		return qErr
	})
	if err != nil {
		return nil, err
	}

	points := make([]ChartPoint, 0, len(docs))
	for _, doc := range docs {
		points = append(points, s.chartPoint(doc, device.Type))
	}

	return &HistoricalResult{
		Device: deviceInfo(device),
		Query: HistoricalQueryInfo{
			From:  timePtr(req.From),
			To:    timePtr(req.To),
			Limit: limit,
			Count: len(points),
		},
		Data: points,
	}, nil
}

// DeviceExport pages through a device's documents in ascending order.
func (s *Service) DeviceExport(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	const op = "deviceExport"

	limit, err := defaultedLimit(op, req.Limit, defaultExportLimit)
	if err != nil {
		return nil, err
	}
	if req.Offset < 0 {
		return nil, apperr.Errorf(apperr.KindValidation, op, "offset must not be negative")
	}
	window := aggregation.Window{From: req.From, To: req.To}
	if err := window.Validate(); err != nil {
		return nil, apperr.E(apperr.KindValidation, op, err)
	}

	device, err := s.device(ctx, op, req.DeviceID, req.SiteID)
	if err != nil {
		return nil, err
	}

	query := storage.DocumentQuery{
		Collection: device.Type.Collection(),
		DeviceID:   device.DeviceID,
		From:       window.From,
		To:         window.To,
		Ascending:  true,
		Offset:     req.Offset,
		Limit:      limit,
	}

	var (
		docs  []reading.Document
		total int64
	)
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		var qErr error
		if total, qErr = sess.CountDocuments(ctx, query); qErr != nil {
			return qErr
		}
		docs, qErr = sess.Documents(ctx, query)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []reading.Document{}
	}

	return &ExportResult{
		Device: deviceInfo(device),
		Query: ExportQueryInfo{
			From:          timePtr(req.From),
			To:            timePtr(req.To),
			Limit:         limit,
			Offset:        req.Offset,
			TotalCount:    total,
			ReturnedCount: len(docs),
			HasMore:       req.Offset+int64(len(docs)) < total,
		},
		Data: docs,
	}, nil
}

func defaultedLimit(op string, limit, def int64) (int64, error) {
	if limit < 0 {
		return 0, apperr.Errorf(apperr.KindValidation, op, "limit must not be negative")
	}
	if limit == 0 {
		return def, nil
	}
	return limit, nil
}

// chartPoint takes the first of value, consumption and production as the
// plotted value, zero when none is numeric.
func (s *Service) chartPoint(doc reading.Document, typ reading.Type) ChartPoint {
	at, _ := s.normalizer.Normalize(doc.Timestamp())

	p := ChartPoint{Timestamp: at, Value: decimal.Zero, Unit: typ.DefaultUnit()}
	for _, field := range []string{reading.FieldValue, reading.FieldConsumption, reading.FieldProduction} {
		if v, ok := doc.Number(field); ok {
			p.Value = v
			break
		}
	}
	if unit, ok := doc[reading.FieldUnit].(string); ok && unit != "" {
		p.Unit = unit
	}

	p.FlowRate = optionalNumber(doc, reading.FieldFlowRate)
	p.Pressure = optionalNumber(doc, reading.FieldPressure)
	p.Temperature = optionalNumber(doc, reading.FieldTemperature)
	p.Humidity = optionalNumber(doc, reading.FieldHumidity)
	p.Power = optionalNumber(doc, reading.FieldPower)
	return p
}

func optionalNumber(doc reading.Document, field string) *decimal.Decimal {
	if v, ok := doc.Number(field); ok {
		return &v
	}
	return nil
}
