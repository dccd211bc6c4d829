package ssechannel_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	interrors "github.com/attendhq/go-session-coordinator/internal/errors"
	"github.com/attendhq/go-session-coordinator/livechannel"
	"github.com/attendhq/go-session-coordinator/livechannel/ssechannel"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recorder struct {
	lock   sync.Mutex
	events []livechannel.Event
	errs   []error
}

func (r *recorder) onEvent(e livechannel.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) onError(err error) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) eventCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.events)
}

func (r *recorder) errCount() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.errs)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "attendance", r.URL.Query().Get("topic"))
		require.Equal(t, "user_id=eq.user-1", r.URL.Query().Get("filter"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"kind\":\"clock_in\"}\n\n")
		flusher.Flush()
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "data: {\"kind\":\"clock_out\"}\n\n")
		flusher.Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	provider, err := ssechannel.New(server.URL, "tok")
	require.NoError(t, err)

	rec := &recorder{}
	handle, err := provider.Subscribe(context.Background(), "attendance",
		&livechannel.Filter{Column: "user_id", Equals: "user-1"},
		rec.onEvent, rec.onError)
	require.NoError(t, err)
	defer handle.Close()

	require.Eventually(t, func() bool { return rec.eventCount() == 2 }, waitFor, tick)

	rec.lock.Lock()
	defer rec.lock.Unlock()
	require.Equal(t, "attendance", rec.events[0].Topic)
	require.JSONEq(t, `{"kind":"clock_in"}`, string(rec.events[0].Payload))
	require.JSONEq(t, `{"kind":"clock_out"}`, string(rec.events[1].Payload))
}

func TestDroppedStreamReportsAndRedials(t *testing.T) {
	var (
		lock  sync.Mutex
		dials int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		lock.Lock()
		dials++
		lock.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	provider, err := ssechannel.New(server.URL, "", ssechannel.WithRetryInterval(10*time.Millisecond))
	require.NoError(t, err)

	rec := &recorder{}
	handle, err := provider.Subscribe(context.Background(), "notifications", nil, rec.onEvent, rec.onError)
	require.NoError(t, err)
	defer handle.Close()

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return dials >= 2 && rec.errCount() >= 2
	}, waitFor, tick, "a failing stream keeps re-dialling and reporting")

	rec.lock.Lock()
	defer rec.lock.Unlock()
	require.ErrorIs(t, rec.errs[0], interrors.ErrChannelUnavailable)
}

func TestCloseStopsRedialling(t *testing.T) {
	var (
		lock  sync.Mutex
		dials int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		lock.Lock()
		dials++
		lock.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	provider, err := ssechannel.New(server.URL, "", ssechannel.WithRetryInterval(10*time.Millisecond))
	require.NoError(t, err)

	rec := &recorder{}
	handle, err := provider.Subscribe(context.Background(), "work_mode", nil, rec.onEvent, rec.onError)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		lock.Lock()
		defer lock.Unlock()
		return dials >= 1
	}, waitFor, tick)

	handle.Close()
	handle.Close() // Idempotent

	lock.Lock()
	settled := dials
	lock.Unlock()
	time.Sleep(50 * time.Millisecond)

	lock.Lock()
	defer lock.Unlock()
	require.LessOrEqual(t, dials, settled+1, "no new dials after close")
}
