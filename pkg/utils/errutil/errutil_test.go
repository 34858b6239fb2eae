package errutil_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/malinsight/pkg/domain/model"
	"github.com/secmon-lab/malinsight/pkg/utils/errutil"
)

// recordTransport keeps sent events in memory
type recordTransport struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (x *recordTransport) Flush(time.Duration) bool              { return true }
func (x *recordTransport) FlushWithContext(context.Context) bool { return true }
func (x *recordTransport) Configure(sentry.ClientOptions)        {}
func (x *recordTransport) Close()                                {}

func (x *recordTransport) SendEvent(event *sentry.Event) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = append(x.events, event)
}

func (x *recordTransport) Events() []*sentry.Event {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]*sentry.Event(nil), x.events...)
}

func newSentryContext(t *testing.T) (context.Context, *recordTransport) {
	t.Helper()
	transport := &recordTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{Transport: transport})
	gt.NoError(t, err).Required()
	hub := sentry.NewHub(client, sentry.NewScope())
	return sentry.SetHubOnContext(context.Background(), hub), transport
}

func TestHandle(t *testing.T) {
	t.Run("goerr values are sent as context", func(t *testing.T) {
		ctx, transport := newSentryContext(t)
		err := goerr.Wrap(model.ErrUpstream, "provider call failed", goerr.V("status", 502))

		gt.Value(t, errutil.Handle(ctx, err, "analysis failed")).Equal(err)

		events := transport.Events()
		gt.A(t, events).Length(1)
		gt.Value(t, events[0].Tags["kind"]).Equal("upstream")
		goerrCtx, ok := events[0].Contexts["goerr"]
		gt.Bool(t, ok).True()
		gt.Value(t, goerrCtx["status"]).Equal(any(502))
	})

	t.Run("plain error has no goerr context", func(t *testing.T) {
		ctx, transport := newSentryContext(t)

		_ = errutil.Handle(ctx, errors.New("boom"), "failed")

		events := transport.Events()
		gt.A(t, events).Length(1)
		gt.Value(t, events[0].Tags["kind"]).Equal("internal")
		_, ok := events[0].Contexts["goerr"]
		gt.Bool(t, ok).False()
	})

	t.Run("nil error is ignored", func(t *testing.T) {
		ctx, transport := newSentryContext(t)

		gt.NoError(t, errutil.Handle(ctx, nil, "nothing"))
		gt.A(t, transport.Events()).Length(0)
	})
}

func TestHandleHTTP(t *testing.T) {
	tests := map[string]struct {
		err      error
		status   int
		kind     string
		captured int
	}{
		"client error is not reported": {
			err:      goerr.Wrap(model.ErrMissingIdentifier, "hash is required"),
			status:   http.StatusBadRequest,
			kind:     "missing_identifier",
			captured: 0,
		},
		"server error is reported": {
			err:      goerr.Wrap(model.ErrUpstream, "VirusTotal unavailable", goerr.V("status", 503)),
			status:   http.StatusBadGateway,
			kind:     "upstream",
			captured: 1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			ctx, transport := newSentryContext(t)
			w := httptest.NewRecorder()

			errutil.HandleHTTP(ctx, w, tc.err, tc.status)

			gt.Value(t, w.Code).Equal(tc.status)
			gt.Value(t, w.Header().Get("Content-Type")).Equal("application/json")

			var resp errutil.ErrorResponse
			gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp)).Required()
			gt.Value(t, resp.Kind).Equal(tc.kind)
			gt.Value(t, resp.Error).Equal(tc.err.Error())
			gt.A(t, transport.Events()).Length(tc.captured)
		})
	}
}
