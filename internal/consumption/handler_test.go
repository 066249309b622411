package consumption

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	apperr "github.com/sitewatch/sitewatch/internal/core/errors"
	"github.com/stretchr/testify/require"
)

func newRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	f.svc.RegisterRoutes(r)
	return r
}

func serve(r *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, url, nil)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestHandler_StatusMapping(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		url            string
		body           string
		configure      func(f *fixture)
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "site stats ok",
			method:         http.MethodPost,
			url:            "/v1/sites/s1/readings/energy/stats?granularity=month",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown site returns 404",
			method:         http.MethodPost,
			url:            "/v1/sites/ghost/readings/energy/stats",
			expectedStatus: http.StatusNotFound,
			expectedType:   apperr.HttpTenantNotFoundError,
		},
		{
			name:           "unknown type returns 400",
			method:         http.MethodPost,
			url:            "/v1/sites/s1/readings/steam/index",
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpValidationError,
		},
		{
			name:           "unparseable from returns 400",
			method:         http.MethodPost,
			url:            "/v1/sites/s1/readings/energy/stats?from=yesterday",
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpValidationError,
		},
		{
			name:   "store down returns 503",
			method: http.MethodPost,
			url:    "/v1/sites/s1/readings/energy/index",
			configure: func(f *fixture) {
				f.store.FailOpen("North_Plant", errors.New("connection refused"))
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedType:   apperr.HttpStoreUnavailable,
		},
		{
			name:           "field and metric together returns 400",
			method:         http.MethodGet,
			url:            "/v1/sites/s1/readings/energy/devices/m-1/stats?field=value&metric=power",
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpInvalidRequestError,
		},
		{
			name:           "raw for unknown device returns 404",
			method:         http.MethodGet,
			url:            "/v1/sites/s1/readings/energy/devices/m-404/raw?range=24h",
			expectedStatus: http.StatusNotFound,
			expectedType:   apperr.HttpNotFoundError,
		},
		{
			name:           "historical ok",
			method:         http.MethodGet,
			url:            "/v1/sites/s1/devices/m-1/historical?from=2024-01-01&to=1704240000000",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "export with bad limit returns 400",
			method:         http.MethodGet,
			url:            "/v1/sites/s1/devices/m-1/export?limit=many",
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpInvalidRequestError,
		},
		{
			name:           "device listing with bad type returns 400",
			method:         http.MethodGet,
			url:            "/v1/sites/s1/devices?type=steam",
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpInvalidRequestError,
		},
		{
			name:           "malformed JSON returns 400",
			method:         http.MethodPost,
			url:            "/v1/global/energy/stats",
			body:           `{"siteIds": "s1"`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpInvalidRequestError,
		},
		{
			name:           "global stats without siteIds returns 400",
			method:         http.MethodPost,
			url:            "/v1/global/energy/stats",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpValidationError,
		},
		{
			name:           "global index with blank siteIds returns 400",
			method:         http.MethodPost,
			url:            "/v1/global/energy/index",
			body:           `{"siteIds": ["", ""]}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpValidationError,
		},
		{
			name:           "global compare without siteIds returns 400",
			method:         http.MethodPost,
			url:            "/v1/global/energy/compare",
			body:           `{"granularity": "day"}`,
			expectedStatus: http.StatusBadRequest,
			expectedType:   apperr.HttpValidationError,
		},
		{
			name:           "device compare ok",
			method:         http.MethodPost,
			url:            "/v1/sites/s1/readings/energy/compare",
			body:           `{"deviceIds": ["m-1"], "granularity": "day"}`,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, Options{})
			if tc.configure != nil {
				tc.configure(f)
			}

			resp := serve(newRouter(f), tc.method, tc.url, tc.body)
			if resp.Code != tc.expectedStatus {
				t.Logf("unexpected response body: %s", resp.Body.String())
			}
			require.Equal(t, tc.expectedStatus, resp.Code)

			if tc.expectedType != "" {
				var body apperr.ErrorResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
				require.Equal(t, tc.expectedType, body.ErrorType)
			}
		})
	}
}

func TestHandler_SiteStatsRendersNumbers(t *testing.T) {
	f := newFixture(t, Options{})

	resp := serve(newRouter(f), http.MethodPost, "/v1/sites/s1/readings/energy/stats", "")
	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `[
		{"period": "2024-01-01", "totalIndex": 25},
		{"period": "2024-01-02", "totalIndex": 20}
	]`, resp.Body.String())
}

func TestHandler_GlobalStatsReportsLeftOutSites(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.FailQueries("South_Plant", errors.New("node is recovering"))

	resp := serve(newRouter(f), http.MethodPost, "/v1/global/energy/stats",
		`{"siteIds": ["s1", "ghost", "s2"], "granularity": "month"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "ghost", resp.Header().Get(HeaderSitesSkipped))
	require.Equal(t, "s2", resp.Header().Get(HeaderSitesFailed))
	require.JSONEq(t, `[{"period": "2024-01", "total": 55}]`, resp.Body.String())
}

func TestHandler_GlobalIndexAllFailed(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.FailOpen("North_Plant", errors.New("refused"))

	resp := serve(newRouter(f), http.MethodPost, "/v1/global/energy/index", `{"siteIds": ["s1"]}`)

	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, "s1", resp.Header().Get(HeaderSitesFailed))
}

func TestHandler_GlobalCompare(t *testing.T) {
	f := newFixture(t, Options{})

	resp := serve(newRouter(f), http.MethodPost, "/v1/global/energy/compare",
		`{"siteIds": ["s2"], "granularity": "year"}`)

	require.Equal(t, http.StatusOK, resp.Code)
	require.JSONEq(t, `[{"siteId": "s2", "siteName": "South Plant", "values": [{"period": "2024", "value": 11}]}]`,
		resp.Body.String())
}
