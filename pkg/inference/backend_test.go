package inference_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modelmux/modelmux/pkg/inference"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to inference.Status
		want     bool
	}{
		{inference.Stopped, inference.Starting, true},
		{inference.Starting, inference.Running, true},
		{inference.Starting, inference.Stopped, true},
		{inference.Running, inference.Stopping, true},
		{inference.Stopping, inference.Stopped, true},
		{inference.Stopped, inference.Running, false},
		{inference.Running, inference.Starting, false},
		{inference.Stopping, inference.Running, false},
	}
	for _, tc := range cases {
		got := inference.CanTransition(tc.from, tc.to)
		require.Equal(t, tc.want, got, "CanTransition(%s, %s)", tc.from, tc.to)
	}
}

// fakeBackend is a minimal Backend used to exercise Handle's composites
// without spawning a real process.
type fakeBackend struct {
	startErr        error
	readyErr        error
	running         bool
	stopErr         error
	stopClearsAfter int
	checkCalls      int
}

func (f *fakeBackend) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeBackend) Stop(ctx context.Context) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	return nil
}

func (f *fakeBackend) CheckRunning(ctx context.Context) (bool, error) {
	f.checkCalls++
	if f.checkCalls > f.stopClearsAfter {
		f.running = false
	}
	return f.running, nil
}

func (f *fakeBackend) WaitUntilReady(ctx context.Context, timeout time.Duration) error {
	return f.readyErr
}

func (f *fakeBackend) Port() int { return 0 }

func TestHandle_StartAndWait_Success(t *testing.T) {
	b := &fakeBackend{}
	h := inference.NewHandle(b)

	require.NoError(t, h.StartAndWait(context.Background(), time.Second))
	require.Equal(t, inference.Running, h.Status)
}

func TestHandle_StartAndWait_StartFails(t *testing.T) {
	b := &fakeBackend{startErr: errors.New("boom")}
	h := inference.NewHandle(b)

	err := h.StartAndWait(context.Background(), time.Second)
	require.Error(t, err)
	require.Equal(t, inference.Stopped, h.Status)
}

func TestHandle_StartAndWait_ReadyTimesOut(t *testing.T) {
	b := &fakeBackend{readyErr: errors.New("never ready")}
	h := inference.NewHandle(b)

	err := h.StartAndWait(context.Background(), time.Second)
	require.Error(t, err)
	require.Equal(t, inference.Stopped, h.Status)
}

func TestHandle_StopAndWait(t *testing.T) {
	b := &fakeBackend{running: true, stopClearsAfter: 2}
	h := inference.NewHandle(b)
	h.Status = inference.Running

	require.NoError(t, h.StopAndWait(context.Background()))
	require.Equal(t, inference.Stopped, h.Status)
	require.True(t, b.checkCalls > 2)
}

func TestWaitUntilReadyHTTP_Succeeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := inference.WaitUntilReadyHTTP(context.Background(), srv.Client(), srv.URL, time.Second)
	require.NoError(t, err)
}

func TestWaitUntilReadyHTTP_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := inference.WaitUntilReadyHTTP(context.Background(), srv.Client(), srv.URL, 600*time.Millisecond)
	require.Error(t, err)
}
