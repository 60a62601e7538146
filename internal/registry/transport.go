package registry

import (
	"context"
	"strings"

	"github.com/stacklok/biblio-sync/internal/httpclient"
	"github.com/stacklok/biblio-sync/internal/ratelimit"
)

// Transport sends registry requests through the target's rate limiter
type Transport struct {
	HTTP    httpclient.Client
	Limiter *ratelimit.Limiter
}

// Call waits for the rate limiter and performs the request. Any response is
// returned as is; transport failures are classified as transient.
func (t *Transport) Call(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(ctx); err != nil {
			return nil, TransportError(err)
		}
	}
	resp, err := t.HTTP.Do(ctx, req)
	if err != nil {
		return nil, TransportError(err)
	}
	return resp, nil
}

// Expect performs the request and turns non-2xx responses into classified errors
func (t *Transport) Expect(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	resp, err := t.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if regErr := ClassifyResponse(resp, withoutQuery(req.URL)); regErr != nil {
		return resp, regErr
	}
	return resp, nil
}

// withoutQuery drops the query string, which may carry credentials
func withoutQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
