package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/sitewatch/sitewatch/internal/core/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSiteDirectory struct {
	mock.Mock
}

func (m *mockSiteDirectory) GetSite(ctx context.Context, siteID string) (*storage.Site, error) {
	args := m.Called(ctx, siteID)
	site, _ := args.Get(0).(*storage.Site)
	return site, args.Error(1)
}

func TestStoreKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "single space", in: "North Plant", want: "North_Plant"},
		{name: "whitespace run", in: "North \t Plant", want: "North_Plant"},
		{name: "no whitespace", in: "Depot", want: "Depot"},
		{name: "multiple words", in: "Site A B", want: "Site_A_B"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, StoreKey(tc.in))
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name      string
		configure func(dir *mockSiteDirectory)
		wantKey   string
		wantKind  apperr.Kind
	}{
		{
			name: "resolves store key",
			configure: func(dir *mockSiteDirectory) {
				dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "North Plant"}, nil).Once()
			},
			wantKey: "North_Plant",
		},
		{
			name: "unknown site",
			configure: func(dir *mockSiteDirectory) {
				dir.On("GetSite", mock.Anything, "s1").Return(nil, storage.ErrNotFound).Once()
			},
			wantKind: apperr.KindTenantNotFound,
		},
		{
			name: "blank name",
			configure: func(dir *mockSiteDirectory) {
				dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "  "}, nil).Once()
			},
			wantKind: apperr.KindTenantNotFound,
		},
		{
			name: "directory failure",
			configure: func(dir *mockSiteDirectory) {
				dir.On("GetSite", mock.Anything, "s1").Return(nil, errors.New("db down")).Once()
			},
			wantKind: apperr.KindInternal,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := &mockSiteDirectory{}
			tc.configure(dir)

			r := NewResolver(dir, Options{})
			got, err := r.Resolve(context.Background(), "s1")
			if tc.wantKind != "" {
				require.Error(t, err)
				require.Equal(t, tc.wantKind, apperr.KindOf(err))
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.wantKey, got.StoreKey)
			}
			dir.AssertExpectations(t)
		})
	}
}

func TestResolver_CachesUntilTTL(t *testing.T) {
	dir := &mockSiteDirectory{}
	dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "A"}, nil).Twice()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewResolver(dir, Options{CacheSize: 4, CacheTTL: time.Minute})
	r.cache.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		_, err := r.Resolve(context.Background(), "s1")
		require.NoError(t, err)
	}

	now = now.Add(time.Minute)
	_, err := r.Resolve(context.Background(), "s1")
	require.NoError(t, err)

	dir.AssertExpectations(t)
}

func TestResolver_RefreshPicksUpRename(t *testing.T) {
	dir := &mockSiteDirectory{}
	dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "Old Name"}, nil).Once()
	dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "New Name"}, nil).Once()
	dir.On("GetSite", mock.Anything, "s2").Return(&storage.Site{ID: "s2", Name: "Gone"}, nil).Once()
	dir.On("GetSite", mock.Anything, "s2").Return(nil, storage.ErrNotFound).Once()

	r := NewResolver(dir, Options{CacheSize: 4, CacheTTL: time.Hour})
	_, err := r.Resolve(context.Background(), "s1")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "s2")
	require.NoError(t, err)

	updated, evicted := r.Refresh(context.Background())
	require.Equal(t, 1, updated)
	require.Equal(t, 1, evicted)

	got, err := r.Resolve(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "New_Name", got.StoreKey)
	require.Equal(t, 1, r.cache.len())
	dir.AssertExpectations(t)
}

func TestResolver_InvalidateForcesLookup(t *testing.T) {
	dir := &mockSiteDirectory{}
	dir.On("GetSite", mock.Anything, "s1").Return(&storage.Site{ID: "s1", Name: "A"}, nil).Twice()

	r := NewResolver(dir, Options{CacheSize: 4, CacheTTL: time.Hour})
	_, err := r.Resolve(context.Background(), "s1")
	require.NoError(t, err)
	r.Invalidate("s1")
	_, err = r.Resolve(context.Background(), "s1")
	require.NoError(t, err)
	dir.AssertExpectations(t)
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(2, time.Hour)
	c.put(Tenant{SiteID: "a"})
	c.put(Tenant{SiteID: "b"})
	_, _ = c.get("a")
	c.put(Tenant{SiteID: "c"})

	_, ok := c.get("b")
	require.False(t, ok)
	_, ok = c.get("a")
	require.True(t, ok)
	require.Equal(t, []string{"a", "c"}, c.keys())
}

func TestRefresher_StopsOnCancel(t *testing.T) {
	r := NewRefresher(time.Millisecond, NewResolver(&mockSiteDirectory{}, Options{}))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
