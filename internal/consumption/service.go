// Package consumption serves consumption statistics over tenant reading
// stores: per-site and per-device bucketed deltas, live indexes, raw and
// historical retrieval, and multi-site roll-ups.
package consumption

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/aggregation"
	"github.com/sitewatch/sitewatch/internal/core/bucket"
	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/reading"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/core/timestamp"
	"github.com/sitewatch/sitewatch/internal/tenant"
)

const sessionCloseTimeout = 5 * time.Second

// TenantResolver maps a site id to its tenant store.
type TenantResolver interface {
	Resolve(ctx context.Context, siteID string) (tenant.Tenant, error)
}

// FailureRecorder counts sites dropped from multi-site results.
type FailureRecorder interface {
	SiteFailed(op, kind string)
}

type noopRecorder struct{}

func (noopRecorder) SiteFailed(string, string) {}

// Options tunes a Service. Zero values select defaults.
type Options struct {
	MaxInFlight int
	DefaultWeek bucket.WeekConvention
	Normalizer  *timestamp.Normalizer
	Failures    FailureRecorder
}

// Service implements the consumption read path.
type Service struct {
	dir         storage.Directory
	resolver    TenantResolver
	opener      storage.SessionOpener
	normalizer  *timestamp.Normalizer
	failures    FailureRecorder
	maxInFlight int
	defaultWeek bucket.WeekConvention
	nowFn       func() time.Time
}

func NewService(dir storage.Directory, resolver TenantResolver, opener storage.SessionOpener, opts Options) *Service {
	s := &Service{
		dir:         dir,
		resolver:    resolver,
		opener:      opener,
		normalizer:  opts.Normalizer,
		failures:    opts.Failures,
		maxInFlight: opts.MaxInFlight,
		defaultWeek: opts.DefaultWeek,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
	if s.normalizer == nil {
		s.normalizer = timestamp.NewNormalizer(nil)
	}
	if s.failures == nil {
		s.failures = noopRecorder{}
	}
	if s.maxInFlight <= 0 {
		s.maxInFlight = defaultMaxInFlight
	}
	if s.defaultWeek == "" {
		s.defaultWeek = bucket.WeekSunday
	}
	return s
}

// SiteStats returns the summed per-bucket consumption of every device of one
// type at a site.
func (s *Service) SiteStats(ctx context.Context, req SiteStatsRequest) ([]PeriodIndex, error) {
	const op = "siteStats"
	q, b, err := s.normalizeQuery(op, req.SeriesQuery)
	if err != nil {
		return nil, err
	}

	var series aggregation.Series
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		series, err = s.summedSeries(ctx, sess, q, b)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]PeriodIndex, 0, len(series.Points))
	for _, p := range series.Points {
		out = append(out, PeriodIndex{Period: p.Label, TotalIndex: p.Value})
	}
	return out, nil
}

// SiteIndex sums the latest reading of every device of one type at a site.
// The live index is never windowed.
func (s *Service) SiteIndex(ctx context.Context, siteID string, typ reading.Type, field string) (IndexResult, error) {
	const op = "siteIndex"
	q, _, err := s.normalizeQuery(op, SeriesQuery{Type: typ, Field: field})
	if err != nil {
		return IndexResult{}, err
	}

	var total decimal.Decimal
	err = s.withTenant(ctx, op, siteID, func(_ tenant.Tenant, sess storage.Session) error {
		total, err = s.latestSum(ctx, sess, q)
		return err
	})
	if err != nil {
		return IndexResult{}, err
	}
	return IndexResult{TotalIndex: total}, nil
}

// DeviceStats returns one device's bucketed series: deltas of Field, or the
// mean of Metric when a metric is requested.
func (s *Service) DeviceStats(ctx context.Context, req DeviceStatsRequest) ([]DeviceStat, error) {
	const op = "deviceStats"
	q, b, err := s.normalizeQuery(op, req.SeriesQuery)
	if err != nil {
		return nil, err
	}

	mode := aggregation.ModeDelta
	field := q.Field
	if req.Metric != "" {
		if !reading.IsMetricField(req.Metric) {
			return nil, apperr.Errorf(apperr.KindValidation, op,
				"metric must be one of %s", strings.Join(reading.MetricFields, ", "))
		}
		mode = aggregation.ModeMean
		field = req.Metric
	}

	if _, err := s.deviceOfType(ctx, op, req.DeviceID, req.SiteID, q.Type); err != nil {
		return nil, err
	}

	var series []aggregation.Series
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		samples, err := s.samples(ctx, sess, q.Type, field, []string{req.DeviceID})
		if err != nil {
			return err
		}
		series = aggregation.Aggregate(samples, aggregation.Query{
			Mode:     mode,
			Scope:    aggregation.ScopePerDevice,
			Bucketer: b,
			Window:   q.Window,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []DeviceStat
	for _, sr := range series {
		for _, p := range sr.Points {
			out = append(out, deviceStat(p, mode))
		}
	}
	if out == nil {
		out = []DeviceStat{}
	}
	return out, nil
}

func deviceStat(p aggregation.Point, mode aggregation.Mode) DeviceStat {
	st := DeviceStat{Period: p.Label, Count: p.Count}
	if mode == aggregation.ModeMean {
		st.Value = decimalPtr(p.Value)
		return st
	}
	st.TotalIndex = decimalPtr(p.Value)
	st.Avg = decimalPtr(p.Mean())
	st.Min = decimalPtr(p.Min)
	st.Max = decimalPtr(p.Max)
	return st
}

// ListSiteDevices returns the devices of a site, optionally of one type.
func (s *Service) ListSiteDevices(ctx context.Context, siteID string, typ reading.Type) ([]DeviceInfo, error) {
	const op = "listSiteDevices"
	if _, err := s.resolver.Resolve(ctx, siteID); err != nil {
		return nil, apperr.E(apperr.KindTenantNotFound, op, err)
	}

	devices, err := s.dir.ListDevices(ctx, siteID, typ)
	if err != nil {
		return nil, apperr.E(apperr.KindInternal, op, err)
	}

	out := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceInfo(d))
	}
	return out, nil
}

// normalizeQuery applies defaults and validates the request. The returned
// Bucketer is the one every bucket label of the request is computed with.
func (s *Service) normalizeQuery(op string, q SeriesQuery) (SeriesQuery, bucket.Bucketer, error) {
	typ, err := reading.ParseType(string(q.Type))
	if err != nil {
		return q, bucket.Bucketer{}, apperr.E(apperr.KindValidation, op, err)
	}
	q.Type = typ

	q.Field = strings.TrimSpace(q.Field)
	if q.Field == "" {
		q.Field = reading.FieldValue
	}
	if err := validateField(q.Field); err != nil {
		return q, bucket.Bucketer{}, apperr.E(apperr.KindValidation, op, err)
	}

	if err := q.Window.Validate(); err != nil {
		return q, bucket.Bucketer{}, apperr.E(apperr.KindValidation, op, err)
	}

	q.Granularity = bucket.ParseGranularity(string(q.Granularity))
	week, err := bucket.ParseWeekConvention(string(q.Week), s.defaultWeek)
	if err != nil {
		return q, bucket.Bucketer{}, apperr.E(apperr.KindValidation, op, err)
	}
	q.Week = week

	return q, bucket.New(q.Granularity, q.Week), nil
}

// reservedFields are document keys a value field may not name.
var reservedFields = map[string]bool{
	"_id":                  true,
	reading.FieldDeviceID:  true,
	reading.FieldTimestamp: true,
}

// validateField keeps field names to plain, non-reserved document keys.
func validateField(field string) error {
	if strings.HasPrefix(field, "$") || strings.Contains(field, ".") {
		return errors.New("field must be a plain document key")
	}
	if reservedFields[field] {
		return fmt.Errorf("field %q is reserved", field)
	}
	return nil
}

// deviceOfType looks a device up at a site and checks it has the given type.
func (s *Service) deviceOfType(ctx context.Context, op, deviceID, siteID string, typ reading.Type) (storage.Device, error) {
	d, err := s.device(ctx, op, deviceID, siteID)
	if err != nil {
		return storage.Device{}, err
	}
	if typ != "" && d.Type != typ {
		return storage.Device{}, apperr.Errorf(apperr.KindNotFound, op,
			"device %q at site %q is %s, not %s", deviceID, siteID, d.Type, typ)
	}
	return d, nil
}

func (s *Service) device(ctx context.Context, op, deviceID, siteID string) (storage.Device, error) {
	if deviceID == "" {
		return storage.Device{}, apperr.Errorf(apperr.KindValidation, op, "device id is required")
	}
	d, err := s.dir.GetDevice(ctx, deviceID, siteID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Device{}, apperr.Errorf(apperr.KindNotFound, op, "device %q not found at site %q", deviceID, siteID)
	}
	if err != nil {
		return storage.Device{}, apperr.E(apperr.KindInternal, op, err)
	}
	return *d, nil
}

// withTenant resolves one site and runs fn inside a session on its store.
func (s *Service) withTenant(ctx context.Context, op, siteID string, fn func(t tenant.Tenant, sess storage.Session) error) error {
	t, err := s.resolver.Resolve(ctx, siteID)
	if err != nil {
		return apperr.E(apperr.KindTenantNotFound, op, err)
	}
	if err := s.withSession(ctx, t, func(sess storage.Session) error { return fn(t, sess) }); err != nil {
		return apperr.E(apperr.KindStoreUnavailable, op, err)
	}
	return nil
}

// withSession opens a session on the tenant store and always closes it, with
// a context of its own so a cancelled request still releases the session.
func (s *Service) withSession(ctx context.Context, t tenant.Tenant, fn func(sess storage.Session) error) error {
	sess, err := s.opener.Open(ctx, t.StoreKey)
	if err != nil {
		return apperr.E(apperr.KindStoreUnavailable, "openSession", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			slog.Warn("[Consumption] Failed to close store session",
				"site_id", t.SiteID,
				"store", t.StoreKey,
				"error", err)
		}
	}()

	if err := fn(sess); err != nil {
		return apperr.E(apperr.KindStoreUnavailable, "query", err)
	}
	return nil
}

// samples loads readings and normalizes their timestamps.
func (s *Service) samples(ctx context.Context, sess storage.Session, typ reading.Type, field string, deviceIDs []string) ([]aggregation.Sample, error) {
	readings, err := sess.Readings(ctx, storage.ReadingQuery{
		Collection: typ.Collection(),
		Field:      field,
		DeviceIDs:  deviceIDs,
	})
	if err != nil {
		return nil, err
	}

	samples := make([]aggregation.Sample, 0, len(readings))
	for _, r := range readings {
		at, _ := s.normalizer.Normalize(r.Timestamp)
		samples = append(samples, aggregation.Sample{DeviceID: r.DeviceID, At: at, Value: r.Value})
	}
	return samples, nil
}

func (s *Service) summedSeries(ctx context.Context, sess storage.Session, q SeriesQuery, b bucket.Bucketer) (aggregation.Series, error) {
	samples, err := s.samples(ctx, sess, q.Type, q.Field, nil)
	if err != nil {
		return aggregation.Series{}, err
	}
	return aggregation.Aggregate(samples, aggregation.Query{
		Mode:     aggregation.ModeDelta,
		Scope:    aggregation.ScopeSummed,
		Bucketer: b,
		Window:   q.Window,
	})[0], nil
}

func (s *Service) latestSum(ctx context.Context, sess storage.Session, q SeriesQuery) (decimal.Decimal, error) {
	samples, err := s.samples(ctx, sess, q.Type, q.Field, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return aggregation.LatestSum(samples), nil
}

func periodValues(points []aggregation.Point) []PeriodValue {
	out := make([]PeriodValue, 0, len(points))
	for _, p := range points {
		out = append(out, PeriodValue{Period: p.Label, Value: p.Value})
	}
	return out
}
