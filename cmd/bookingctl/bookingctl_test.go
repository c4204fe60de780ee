package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "seed", "recover-dlq", "loadtest"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestSeedEvents(t *testing.T) {
	events, err := seedEvents("", 0)
	require.NoError(t, err)
	assert.Equal(t, []seedEvent{{"Rock Concert", 100}, {"Tech Conference", 50}}, events)

	events, err = seedEvents("Jazz Night", 30)
	require.NoError(t, err)
	assert.Equal(t, []seedEvent{{"Jazz Night", 30}}, events)

	_, err = seedEvents("", 30)
	assert.Error(t, err)
	_, err = seedEvents("Jazz Night", -1)
	assert.Error(t, err)
}

// capacityServer 정원 capacity 인 이벤트를 흉내내는 예약 API
func capacityServer(t *testing.T, capacity int) *httptest.Server {
	t.Helper()
	var (
		mu     sync.Mutex
		booked = map[string]bool{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			EventID uint   `json:"event_id"`
			UserID  string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EventID == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.URL.Path == "/api/bookings/reserve-async" {
			w.WriteHeader(http.StatusAccepted)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		switch {
		case booked[req.UserID]:
			w.WriteHeader(http.StatusBadRequest)
		case len(booked) >= capacity:
			w.WriteHeader(http.StatusGone)
		default:
			booked[req.UserID] = true
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunLoadTest(t *testing.T) {
	srv := capacityServer(t, 10)

	report := runLoadTest(context.Background(), srv.Client(), loadTestOptions{
		BaseURL:     srv.URL + "/",
		EventID:     1,
		Users:       50,
		Concurrency: 8,
	})

	assert.Equal(t, 50, report.Total())
	assert.Equal(t, 10, report.ByStatus[http.StatusCreated])
	assert.Equal(t, 40, report.ByStatus[http.StatusGone])
	assert.Zero(t, report.Errors)
}

func TestRunLoadTest_Async(t *testing.T) {
	srv := capacityServer(t, 1)

	report := runLoadTest(context.Background(), srv.Client(), loadTestOptions{
		BaseURL: srv.URL,
		EventID: 1,
		Users:   5,
		Async:   true,
	})

	assert.Equal(t, 5, report.ByStatus[http.StatusAccepted])
}

func TestRunLoadTest_TransportErrors(t *testing.T) {
	srv := capacityServer(t, 1)
	srv.Close()

	report := runLoadTest(context.Background(), &http.Client{Timeout: time.Second}, loadTestOptions{
		BaseURL: srv.URL,
		EventID: 1,
		Users:   3,
	})

	assert.Equal(t, 3, report.Errors)
}

func TestLoadTestCommand_RequiresEvent(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"loadtest", "--users", "1"})
	cmd.SetOut(new(bytes.Buffer))

	err := cmd.Execute()
	assert.ErrorContains(t, err, "--event")
}

func TestLoadTestCommand_PrintsReport(t *testing.T) {
	srv := capacityServer(t, 2)

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"loadtest", "--event", "1", "--users", "4", "--url", srv.URL})
	cmd.SetOut(&out)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "201")
	assert.Contains(t, out.String(), "410")
	assert.Contains(t, out.String(), "테스트 종료")
}
