package radpro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seubert/gammalog/internal/pkg/device"
	"github.com/seubert/gammalog/internal/pkg/vars"
)

func TestNewRequiresURL(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPollParsesPartialReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cpm": 42, "temp": 21.5}`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res := a.Poll(context.Background())
	require.Equal(t, device.Success, res.Kind)
	assert.Equal(t, 42.0, res.Values[vars.CPM])
	assert.Equal(t, 21.5, res.Values[vars.Temp])

	// absent fields stay absent, they are not zeroes
	_, has := res.Values[vars.CPS]
	assert.False(t, has)
}

func TestPollZeroIsAReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cps": 0}`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res := a.Poll(context.Background())
	require.Equal(t, device.Success, res.Kind)
	assert.Equal(t, 0.0, res.Values[vars.CPS])
}

func TestPollServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res := a.Poll(context.Background())
	assert.Equal(t, device.Failure, res.Kind)
	assert.Error(t, res.Err)
}

func TestPollMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res := a.Poll(context.Background())
	assert.Equal(t, device.Failure, res.Kind)
}

func TestPollEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unrelated": 1}`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	res := a.Poll(context.Background())
	assert.Equal(t, device.Failure, res.Kind)
}

func TestPollContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"cpm": 1}`))
	}))
	defer srv.Close()

	a, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res := a.Poll(ctx)
	assert.Equal(t, device.Timeout, res.Kind)
}
