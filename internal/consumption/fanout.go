package consumption

import (
	"context"
	"log/slog"

	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/sitewatch/sitewatch/internal/tenant"
	"golang.org/x/sync/errgroup"
)

const defaultMaxInFlight = 4

// SiteFailure is a resolved site dropped from a multi-site result.
type SiteFailure struct {
	SiteID string
	Err    error
}

// Report lists the sites a multi-site operation left out.
type Report struct {
	// Skipped sites did not resolve to a tenant.
	Skipped []string
	// Failed sites resolved but their session or query failed.
	Failed []SiteFailure
}

func (r Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.SiteID)
	}
	return ids
}

type siteOutcome[T any] struct {
	tenant tenant.Tenant
	value  T
}

type siteAttempt[T any] struct {
	outcome  siteOutcome[T]
	resolved bool
	err      error
}

// dedupe drops repeated and blank ids, keeping first occurrences in order.
func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// requireSites rejects a site list with no usable id.
func requireSites(op string, siteIDs []string) error {
	if len(dedupe(siteIDs)) == 0 {
		return apperr.Errorf(apperr.KindValidation, op, "siteIds is required")
	}
	return nil
}

// fanOut runs fn once per site with at most maxInFlight sessions open.
// Successful outcomes come back in input order. Unresolved sites are skipped,
// failing sites are reported. When nothing succeeded and at least one site
// failed, the first failure (in input order) is returned as the error; when
// no site resolved at all the result is simply empty.
func fanOut[T any](
	ctx context.Context,
	s *Service,
	op string,
	siteIDs []string,
	fn func(ctx context.Context, sess storage.Session) (T, error),
) ([]siteOutcome[T], Report, error) {
	ids := dedupe(siteIDs)
	attempts := make([]siteAttempt[T], len(ids))

	var g errgroup.Group
	g.SetLimit(s.maxInFlight)
	for i, siteID := range ids {
		g.Go(func() error {
			attempts[i] = runSite(ctx, s, op, siteID, fn)
			return nil
		})
	}
	// Workers record their own errors and never fail the group.
	_ = g.Wait()

	var (
		outcomes []siteOutcome[T]
		report   Report
		firstErr error
	)
	for i, a := range attempts {
		switch {
		case !a.resolved && apperr.Is(a.err, apperr.KindTenantNotFound):
			report.Skipped = append(report.Skipped, ids[i])
		case a.err != nil:
			if firstErr == nil {
				firstErr = a.err
			}
			report.Failed = append(report.Failed, SiteFailure{SiteID: ids[i], Err: a.err})
			s.failures.SiteFailed(op, string(apperr.KindOf(a.err)))
		default:
			outcomes = append(outcomes, a.outcome)
		}
	}

	if len(report.Skipped) > 0 || len(report.Failed) > 0 {
		slog.Warn("[Consumption] Sites left out of result",
			"op", op,
			"requested", len(ids),
			"skipped", report.Skipped,
			"failed", report.FailedIDs())
	}

	if len(outcomes) == 0 && len(report.Failed) > 0 {
		return nil, report, firstErr
	}
	return outcomes, report, nil
}

func runSite[T any](
	ctx context.Context,
	s *Service,
	op string,
	siteID string,
	fn func(ctx context.Context, sess storage.Session) (T, error),
) siteAttempt[T] {
	t, err := s.resolver.Resolve(ctx, siteID)
	if err != nil {
		if apperr.Is(err, apperr.KindTenantNotFound) {
			slog.Debug("[Consumption] Site does not resolve, skipping", "op", op, "site_id", siteID)
		}
		return siteAttempt[T]{err: err}
	}

	var value T
	err = s.withSession(ctx, t, func(sess storage.Session) error {
		var runErr error
		value, runErr = fn(ctx, sess)
		return runErr
	})
	if err != nil {
		slog.Warn("[Consumption] Site failed",
			"op", op,
			"site_id", siteID,
			"store", t.StoreKey,
			"error", err)
		return siteAttempt[T]{resolved: true, err: err}
	}
	return siteAttempt[T]{resolved: true, outcome: siteOutcome[T]{tenant: t, value: value}}
}
