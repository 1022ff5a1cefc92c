package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 100 * time.Millisecond})

	var order []string
	for _, name := range []string{"catalog", "storage", "http"} {
		name := name
		sm.RegisterCloser(name, CloserFunc(func() error {
			order = append(order, name)
			return nil
		}))
	}
	var started, ended bool
	sm.OnShutdownStart(func() { started = true })
	sm.OnShutdownEnd(func() { ended = true })

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"http", "storage", "catalog"}, order)
	assert.True(t, started)
	assert.True(t, ended)
	assert.True(t, sm.IsShuttingDown())

	// A second call is a no-op.
	require.NoError(t, sm.Shutdown(context.Background(), "again"))
	assert.Len(t, order, 3)
}

func TestShutdown_JoinsCloseErrors(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	boom := errors.New("boom")
	closed := false
	sm.RegisterCloser("first", CloserFunc(func() error { closed = true; return nil }))
	sm.RegisterCloser("second", CloserFunc(func() error { return boom }))

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "close second")
	assert.True(t, closed)
}

func TestShutdown_ConcurrentCallersSeeSameResult(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	release := make(chan struct{})
	sm.RegisterCloser("slow", CloserFunc(func() error {
		<-release
		return errors.New("slow failed")
	}))

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = sm.Shutdown(context.Background(), "test")
		}(i)
	}
	close(release)
	wg.Wait()
	for _, err := range errs {
		assert.EqualError(t, err, "close slow: slow failed")
	}
}

func TestShutdown_DrainTimesOut(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 60 * time.Millisecond})
	require.True(t, sm.TrackRequest())

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 in-flight")
	assert.False(t, sm.TrackRequest())
}

func TestShutdownMiddleware(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: time.Second})
	inHandler := make(chan struct{})
	finish := make(chan struct{})
	h := ShutdownMiddleware(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(inHandler)
		<-finish
		w.WriteHeader(http.StatusNoContent)
	}))

	first := httptest.NewRecorder()
	go h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	<-inHandler
	assert.Equal(t, int64(1), sm.InFlightCount())

	done := make(chan error, 1)
	go func() { done <- sm.Shutdown(context.Background(), "test") }()
	<-sm.ShutdownCh()

	rejected := httptest.NewRecorder()
	h.ServeHTTP(rejected, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rejected.Code)
	assert.JSONEq(t, `{"error":"service is shutting down"}`, rejected.Body.String())

	close(finish)
	require.NoError(t, <-done)
	assert.Equal(t, int64(0), sm.InFlightCount())
}

func TestHTTPServer_StopsOnShutdown(t *testing.T) {
	sm := NewShutdownManager(DefaultShutdownConfig())
	srv := NewHTTPServer(&http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})}, sm)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String())
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
