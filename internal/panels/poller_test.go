package panels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "otprelay/core/config"
)

type fakeSink struct {
	calls []sinkCall
}

type sinkCall struct {
	number, message, service, source string
}

func (f *fakeSink) HandleMessage(_ context.Context, number, message, service, source string) (bool, error) {
	f.calls = append(f.calls, sinkCall{number, message, service, source})
	return true, nil
}

func newTestPoller(url string, sink Sink) *Poller {
	return &Poller{
		Config: coreconfig.PanelConfig{
			Name:    "panel-a",
			URL:     url,
			Token:   "secret",
			Records: 10,
		},
		Sink:   sink,
		Client: &http.Client{},
	}
}

func TestPollRoutesLatestRecord(t *testing.T) {
	var gotToken, gotRecords string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		gotRecords = r.URL.Query().Get("records")
		_, _ = w.Write([]byte(`{"data":[
			{"num":"15551230001","cli":"WhatsApp","message":"Your code is 482913"},
			{"num":"15551230002","cli":"Old","message":"stale 111111"}
		]}`))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := newTestPoller(srv.URL, sink)
	require.NoError(t, p.poll(context.Background()))

	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "10", gotRecords)

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "15551230001", sink.calls[0].number)
	assert.Equal(t, "Your code is 482913", sink.calls[0].message)
	assert.Equal(t, "WhatsApp", sink.calls[0].service)
	assert.Equal(t, "panel-a", sink.calls[0].source)
}

func TestPollDeduplicatesByFingerprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"num":"15551230001","cli":"svc","message":"code 482913"}]}`))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := newTestPoller(srv.URL, sink)
	require.NoError(t, p.poll(context.Background()))
	require.NoError(t, p.poll(context.Background()))

	assert.Len(t, sink.calls, 1)
}

func TestPollToleratesNumericMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"num":"15551230001","cli":"svc","message":482913}]}`))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := newTestPoller(srv.URL, sink)
	require.NoError(t, p.poll(context.Background()))

	require.Len(t, sink.calls, 1)
	assert.Equal(t, "482913", sink.calls[0].message)
}

func TestPollEmptyPayloadDoesNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := newTestPoller(srv.URL, sink)
	require.NoError(t, p.poll(context.Background()))
	assert.Empty(t, sink.calls)
}

func TestPollReportsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := &fakeSink{}
	p := newTestPoller(srv.URL, sink)
	err := p.poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Empty(t, sink.calls)
}
