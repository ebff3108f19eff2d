package gtfsfeed

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WessleyAI/routes-aggregator/engine/domain"
	"github.com/WessleyAI/routes-aggregator/pkg/config"
	"github.com/WessleyAI/routes-aggregator/pkg/fn"
	"github.com/jamespfennell/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var feedFiles = map[string]string{
	"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
		"uz,Ukrzaliznytsia,https://uz.gov.ua,Europe/Kyiv\n",
	"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
		"R1,uz,743K,Kyiv - Lviv,2\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
		"KYIV,Kyiv,50.44,30.49\n" +
		"ZHYT,Zhytomyr,50.25,28.66\n" +
		"LVIV,Lviv,49.84,23.99\n",
	"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
		"DAILY,1,1,1,1,1,1,1,20240101,20241231\n",
	"trips.txt": "route_id,service_id,trip_id\n" +
		"R1,DAILY,T1\n",
	"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
		"T1,22:50:00,23:00:00,KYIV,1\n" +
		"T1,24:55:00,25:05:00,ZHYT,2\n" +
		"T1,28:40:00,28:40:00,LVIV,3\n",
}

func feedZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range feedFiles {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func noRetry() fn.RetryOpts { return fn.RetryOpts{MaxAttempts: 1} }

func TestMergeStatic(t *testing.T) {
	kyiv := &gtfs.Stop{Id: "KYIV", Name: "Kyiv"}
	lviv := &gtfs.Stop{Id: "LVIV", Name: "Lviv"}
	service := &gtfs.Service{
		Id:        "WKND",
		Saturday:  true,
		Sunday:    true,
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC),
	}
	static := &gtfs.Static{
		Stops: []gtfs.Stop{*kyiv, *lviv},
		Trips: []gtfs.ScheduledTrip{
			{
				ID:      "T9",
				Route:   &gtfs.Route{Id: "R9", ShortName: "91"},
				Service: service,
				StopTimes: []gtfs.ScheduledStopTime{
					// Out of sequence order on purpose.
					{Stop: lviv, StopSequence: 2, ArrivalTime: 9*time.Hour + 30*time.Minute, DepartureTime: 9*time.Hour + 30*time.Minute},
					{Stop: kyiv, StopSequence: 1, ArrivalTime: 7 * time.Hour, DepartureTime: 7*time.Hour + 5*time.Minute},
				},
			},
			{ID: "EMPTY", Route: &gtfs.Route{Id: "R0"}},
		},
	}

	m := domain.NewModel("uz")
	added := mergeStatic(m, static, "en")
	assert.Equal(t, 1, added)
	require.NoError(t, m.Validate())

	assert.Equal(t, "Kyiv", m.FindStation("KYIV").StationName("en"))
	r := m.FindRoute("T9")
	require.NotNil(t, r)
	assert.Nil(t, m.FindRoute("EMPTY"))
	assert.Equal(t, "91", r.RouteNumber)
	assert.Equal(t, "2024-06-01", r.ActiveFromDate)
	assert.Equal(t, "2024-08-31", r.ActiveToDate)
	assert.Equal(t, "Sat,Sun", r.Periodicity("en"))

	require.Len(t, r.Points, 2)
	assert.Equal(t, domain.NewRoutePoint("uz", "T9", "KYIV", "", "07:05"), r.Points[0])
	assert.Equal(t, domain.NewRoutePoint("uz", "T9", "LVIV", "09:30", ""), r.Points[1])
}

func TestRouteNumberFallbacks(t *testing.T) {
	assert.Equal(t, "X1", routeNumber(gtfs.ScheduledTrip{ID: "t", ShortName: "X1", Route: &gtfs.Route{ShortName: "R"}}))
	assert.Equal(t, "R", routeNumber(gtfs.ScheduledTrip{ID: "t", Route: &gtfs.Route{Id: "id", ShortName: "R"}}))
	assert.Equal(t, "id", routeNumber(gtfs.ScheduledTrip{ID: "t", Route: &gtfs.Route{Id: "id"}}))
	assert.Equal(t, "t", routeNumber(gtfs.ScheduledTrip{ID: "t"}))
}

func TestPeriodicity(t *testing.T) {
	all := &gtfs.Service{Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true, Saturday: true, Sunday: true}
	assert.Equal(t, "daily", periodicity(all))
	assert.Equal(t, "Mon,Fri", periodicity(&gtfs.Service{Monday: true, Friday: true}))
	assert.Equal(t, "", periodicity(&gtfs.Service{}))
}

func TestBuildFromHTTP(t *testing.T) {
	body := feedZip(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer srv.Close()

	b := New(Config{AgentType: "uz", Sources: []string{srv.URL + "/gtfs.zip"}, Language: "en"},
		WithLogger(quiet), WithRetry(noRetry()))
	assert.Equal(t, "uz", b.AgentType())

	m, err := b.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	assert.Len(t, m.Stations, 3)

	r := m.FindRoute("T1")
	require.NotNil(t, r)
	assert.Equal(t, "743K", r.RouteNumber)
	assert.Equal(t, "daily", r.Periodicity("en"))
	require.Len(t, r.Points, 3)
	assert.Equal(t, "23:00", r.Points[0].DepartureTime)
	assert.Equal(t, "00:55", r.Points[1].ArrivalTime, "overnight offsets wrap")
	assert.Equal(t, "04:40", r.Points[2].ArrivalTime)

	travel, err := r.TravelTime()
	require.NoError(t, err)
	assert.Equal(t, "05:40", travel)
}

func TestBuildFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.zip")
	require.NoError(t, os.WriteFile(path, feedZip(t), 0o644))

	b := New(Config{AgentType: "uzs", Sources: []string{path}, Language: "ua"}, WithLogger(quiet))
	m, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "uzs", m.AgentType)
	assert.Equal(t, "Lviv", m.FindStation("LVIV").StationName("ua"))
}

func TestBuildRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := New(Config{AgentType: "uz", Sources: []string{srv.URL}, Language: "en", RequestDelay: time.Millisecond},
		WithLogger(quiet),
		WithRetry(fn.RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}))
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Equal(t, int32(2), hits.Load())
}

func TestBuildDoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	b := New(Config{AgentType: "uz", Sources: []string{srv.URL}, Language: "en", RequestDelay: time.Millisecond},
		WithLogger(quiet),
		WithRetry(fn.RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond}))
	_, err := b.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("connection reset")))
	assert.False(t, retryable(fmt.Errorf("%w: status 404", errPermanent)))
}

func TestBuildMissingFile(t *testing.T) {
	b := New(Config{AgentType: "uz", Sources: []string{filepath.Join(t.TempDir(), "nope.zip")}, Language: "en"},
		WithLogger(quiet), WithRetry(noRetry()))
	_, err := b.Build(context.Background())
	assert.Error(t, err)
}

func TestBuildCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := New(Config{AgentType: "uz", Sources: []string{srv.URL}, Language: "en"}, WithLogger(quiet), WithRetry(noRetry()))
	_, err := b.Build(ctx)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	builders := FromConfig([]config.AgentConfig{
		{AgentType: "uz", Sources: []string{"a.zip"}, Language: "ua", Attempts: 5},
		{AgentType: "pkp", Sources: []string{"b.zip"}, Language: "en"},
	}, WithLogger(quiet))
	require.Len(t, builders, 2)
	assert.Equal(t, "uz", builders[0].AgentType())
	assert.Equal(t, "pkp", builders[1].AgentType())

	uz := builders[0].(*Builder)
	assert.Equal(t, 5, uz.retry.MaxAttempts)
	assert.Equal(t, DefaultRequestDelay, uz.cfg.RequestDelay)
	assert.Equal(t, fn.DefaultRetry.MaxAttempts, builders[1].(*Builder).retry.MaxAttempts)
}
