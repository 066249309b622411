// Package tenant maps site ids to the store key of their tenant database.
package tenant

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/storage"
)

// Tenant is a resolved site.
type Tenant struct {
	SiteID   string
	Name     string
	StoreKey string
}

// SiteDirectory is the slice of storage.Directory the resolver needs.
type SiteDirectory interface {
	GetSite(ctx context.Context, siteID string) (*storage.Site, error)
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// StoreKey derives the tenant store key from a site name: every run of
// whitespace becomes a single underscore.
func StoreKey(siteName string) string {
	return whitespaceRun.ReplaceAllString(siteName, "_")
}

// Options configures the resolver cache. A zero CacheTTL disables caching.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

// Resolver resolves site ids against the directory, caching the result.
type Resolver struct {
	dir   SiteDirectory
	cache *cache
}

func NewResolver(dir SiteDirectory, opts Options) *Resolver {
	r := &Resolver{dir: dir}
	if opts.CacheTTL > 0 {
		r.cache = newCache(opts.CacheSize, opts.CacheTTL)
	}
	return r
}

// Resolve returns a tenant_not_found error when the site is unknown or has a
// blank name.
func (r *Resolver) Resolve(ctx context.Context, siteID string) (Tenant, error) {
	if r.cache != nil {
		if t, ok := r.cache.get(siteID); ok {
			return t, nil
		}
	}

	t, err := r.lookup(ctx, siteID)
	if err != nil {
		return Tenant{}, err
	}
	if r.cache != nil {
		r.cache.put(t)
	}
	return t, nil
}

func (r *Resolver) lookup(ctx context.Context, siteID string) (Tenant, error) {
	if strings.TrimSpace(siteID) == "" {
		return Tenant{}, apperr.Errorf(apperr.KindTenantNotFound, "resolveTenant", "empty site id")
	}

	site, err := r.dir.GetSite(ctx, siteID)
	if errors.Is(err, storage.ErrNotFound) {
		return Tenant{}, apperr.Errorf(apperr.KindTenantNotFound, "resolveTenant", "site %q not found", siteID)
	}
	if err != nil {
		return Tenant{}, apperr.E(apperr.KindInternal, "resolveTenant", err)
	}
	if strings.TrimSpace(site.Name) == "" {
		return Tenant{}, apperr.Errorf(apperr.KindTenantNotFound, "resolveTenant", "site %q has no name", siteID)
	}

	return Tenant{SiteID: site.ID, Name: site.Name, StoreKey: StoreKey(site.Name)}, nil
}

// Invalidate drops a cached site, e.g. after a rename.
func (r *Resolver) Invalidate(siteID string) {
	if r.cache != nil {
		r.cache.invalidate(siteID)
	}
}

// Refresh re-resolves every cached site, updating renamed ones and evicting
// sites that no longer resolve. Returns the number of entries updated.
func (r *Resolver) Refresh(ctx context.Context) (updated, evicted int) {
	if r.cache == nil {
		return 0, 0
	}
	for _, siteID := range r.cache.keys() {
		if ctx.Err() != nil {
			return updated, evicted
		}
		t, err := r.lookup(ctx, siteID)
		if err != nil {
			if apperr.Is(err, apperr.KindTenantNotFound) {
				r.cache.invalidate(siteID)
				evicted++
			}
			continue
		}
		r.cache.put(t)
		updated++
	}
	return updated, evicted
}
