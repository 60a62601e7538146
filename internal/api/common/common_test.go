package common

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAndValidateURLParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantValue  string
		wantErrMsg string
	}{
		{name: "plain id", path: "/articles/a-17", wantValue: "a-17"},
		{name: "encoded slash", path: "/articles/10.1234%2Fabc", wantValue: "10.1234/abc"},
		{name: "encoded space", path: "/articles/a%2017", wantErrMsg: "id cannot contain whitespace"},
		{name: "blank", path: "/articles/%20", wantErrMsg: "id cannot"},
		{name: "bad escape", path: "/articles/a%2", wantErrMsg: "invalid URL encoding in id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var gotValue string
			var gotErr error
			r := chi.NewRouter()
			r.Get("/articles/{id}", func(_ http.ResponseWriter, req *http.Request) {
				gotValue, gotErr = GetAndValidateURLParam(req, "id")
			})

			req := &http.Request{Method: http.MethodGet, URL: mustParseRaw(t, tt.path), Header: http.Header{}}
			r.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantErrMsg != "" {
				require.Error(t, gotErr)
				assert.Contains(t, gotErr.Error(), tt.wantErrMsg)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.wantValue, gotValue)
		})
	}
}

func TestGetBoolQueryParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query   string
		want    bool
		wantErr bool
	}{
		{query: "", want: false},
		{query: "?keepExternalId=true", want: true},
		{query: "?keepExternalId=0", want: false},
		{query: "?keepExternalId=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/reset"+tt.query, nil)
			got, err := GetBoolQueryParam(req, "keepExternalId")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteResponses(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteJSONResponse(rr, map[string]int{"submitted": 3}, http.StatusAccepted)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"submitted":3}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteErrorResponse(rr, "unknown target", http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "unknown target", body.Error)

	rr = httptest.NewRecorder()
	WriteJSONResponse(rr, make(chan int), http.StatusOK)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func mustParseRaw(t *testing.T, path string) *url.URL {
	t.Helper()
	// keep the escaped form so chi routes on RawPath like a real server would
	u, err := url.Parse(path)
	if err != nil {
		return &url.URL{Path: path, RawPath: path}
	}
	return u
}
