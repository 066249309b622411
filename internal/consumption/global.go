package consumption

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
	"github.com/sitewatch/sitewatch/internal/core/aggregation"
	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/tenant"
)

// GlobalStats sums per-bucket consumption across sites.
func (s *Service) GlobalStats(ctx context.Context, req GlobalRequest) ([]PeriodTotal, Report, error) {
	const op = "globalStats"
	if err := requireSites(op, req.SiteIDs); err != nil {
		return nil, Report{}, err
	}
	q, b, err := s.normalizeQuery(op, req.SeriesQuery)
	if err != nil {
		return nil, Report{}, err
	}

	outcomes, report, err := fanOut(ctx, s, op, req.SiteIDs,
		func(ctx context.Context, sess storage.Session) (aggregation.Series, error) {
			return s.summedSeries(ctx, sess, q, b)
		})
	if err != nil {
		return nil, report, apperr.E(apperr.KindStoreUnavailable, op, err)
	}

	perSite := make([]aggregation.Series, 0, len(outcomes))
	for _, o := range outcomes {
		perSite = append(perSite, o.value)
	}
	merged := aggregation.Merge(b, aggregation.ModeDelta, perSite)

	out := make([]PeriodTotal, 0, len(merged.Points))
	for _, p := range merged.Points {
		out = append(out, PeriodTotal{Period: p.Label, Total: p.Value})
	}
	return out, report, nil
}

// GlobalIndex sums the live index of every site.
func (s *Service) GlobalIndex(ctx context.Context, req GlobalRequest) (IndexResult, Report, error) {
	const op = "globalIndex"
	if err := requireSites(op, req.SiteIDs); err != nil {
		return IndexResult{}, Report{}, err
	}
	q, _, err := s.normalizeQuery(op, SeriesQuery{Type: req.Type, Field: req.Field})
	if err != nil {
		return IndexResult{}, Report{}, err
	}

	outcomes, report, err := fanOut(ctx, s, op, req.SiteIDs,
		func(ctx context.Context, sess storage.Session) (decimal.Decimal, error) {
			return s.latestSum(ctx, sess, q)
		})
	if err != nil {
		return IndexResult{}, report, apperr.E(apperr.KindStoreUnavailable, op, err)
	}

	total := decimal.Zero
	for _, o := range outcomes {
		total = total.Add(o.value)
	}
	return IndexResult{TotalIndex: total}, report, nil
}

// GlobalCompare returns one summed series per site, in request order.
func (s *Service) GlobalCompare(ctx context.Context, req GlobalRequest) ([]SiteSeries, Report, error) {
	const op = "globalCompare"
	if err := requireSites(op, req.SiteIDs); err != nil {
		return nil, Report{}, err
	}
	q, b, err := s.normalizeQuery(op, req.SeriesQuery)
	if err != nil {
		return nil, Report{}, err
	}

	outcomes, report, err := fanOut(ctx, s, op, req.SiteIDs,
		func(ctx context.Context, sess storage.Session) (aggregation.Series, error) {
			return s.summedSeries(ctx, sess, q, b)
		})
	if err != nil {
		return nil, report, apperr.E(apperr.KindStoreUnavailable, op, err)
	}

	out := make([]SiteSeries, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, SiteSeries{
			SiteID:   o.tenant.SiteID,
			SiteName: o.tenant.Name,
			Values:   periodValues(o.value.Points),
		})
	}
	return out, report, nil
}

// SiteDeviceCompare returns one series per device of a site, ordered by
// device id and labelled with the device's display name.
func (s *Service) SiteDeviceCompare(ctx context.Context, req DeviceCompareRequest) ([]DeviceSeries, error) {
	const op = "siteDeviceCompare"
	q, b, err := s.normalizeQuery(op, req.SeriesQuery)
	if err != nil {
		return nil, err
	}
	deviceIDs := dedupe(req.DeviceIDs)

	var series []aggregation.Series
	err = s.withTenant(ctx, op, req.SiteID, func(_ tenant.Tenant, sess storage.Session) error {
		samples, err := s.samples(ctx, sess, q.Type, q.Field, deviceIDs)
		if err != nil {
			return err
		}
		series = aggregation.Aggregate(samples, aggregation.Query{
			Mode:     aggregation.ModeDelta,
			Scope:    aggregation.ScopePerDevice,
			Bucketer: b,
			Window:   q.Window,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	names := s.deviceNames(ctx, req.SiteID, q)
	out := make([]DeviceSeries, 0, len(series))
	for _, sr := range series {
		name := names[sr.DeviceID]
		if name == "" {
			name = sr.DeviceID
		}
		out = append(out, DeviceSeries{
			DeviceID:   sr.DeviceID,
			DeviceName: name,
			Values:     periodValues(sr.Points),
		})
	}
	return out, nil
}

// deviceNames maps device ids to display names. On a directory error the map
// is empty.
func (s *Service) deviceNames(ctx context.Context, siteID string, q SeriesQuery) map[string]string {
	devices, err := s.dir.ListDevices(ctx, siteID, q.Type)
	names := make(map[string]string, len(devices))
	if err != nil {
		slog.Warn("[Consumption] Device names unavailable, using ids", "site_id", siteID, "error", err)
		return names
	}
	for _, d := range devices {
		names[d.DeviceID] = d.DisplayName()
	}
	return names
}
