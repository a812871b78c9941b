package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"

	"github.com/pashagolub/pgxmock/v3"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestInsertReadingWithLocation(t *testing.T) {
	mock := newMock(t)
	s := NewStore(mock)

	alt := 34.5
	r := SensorReading{
		RiderID:   "r1",
		SessionID: "s1",
		Timestamp: 1000,
		HeartRate: intp(150),
		Speed:     floatp(32.5),
		Location:  &Location{Latitude: 52.52, Longitude: 13.40, Altitude: &alt},
	}

	mock.ExpectExec(`INSERT INTO readings`).
		WithArgs("s1", "r1", int64(1000), r.HeartRate, r.Power, r.Cadence, r.Speed, 52.52, 13.40, 34.5).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.InsertReading(context.Background(), r); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionReadingsRebuildsLocation(t *testing.T) {
	mock := newMock(t)
	s := NewStore(mock)

	lat, lng := 52.52, 13.40
	mock.ExpectQuery(`SELECT rider_id, session_id, timestamp`).
		WithArgs("s1").
		WillReturnRows(pgxmock.NewRows([]string{"rider_id", "session_id", "timestamp", "heart_rate", "power", "cadence", "speed", "latitude", "longitude", "altitude"}).
			AddRow("r1", "s1", int64(1), intp(140), nil, nil, nil, &lat, &lng, nil).
			AddRow("r1", "s1", int64(2), intp(145), nil, nil, nil, nil, nil, nil))

	readings, err := s.SessionReadings(context.Background(), "s1")
	if err != nil {
		t.Fatalf("session readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("got %d readings", len(readings))
	}
	if readings[0].Location == nil || readings[0].Location.Latitude != 52.52 {
		t.Fatalf("location not rebuilt: %+v", readings[0])
	}
	if readings[1].Location != nil {
		t.Fatalf("location invented for fixless reading")
	}
}

func TestAggregated(t *testing.T) {
	mock := newMock(t)
	s := NewStore(mock)

	mock.ExpectQuery(`SELECT`).
		WithArgs("s1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"avg_hr", "max_hr", "avg_power", "max_power", "avg_cadence", "max_cadence", "avg_speed", "max_speed", "count"}).
			AddRow(142.5, 181.0, 240.0, 410.0, 88.0, 102.0, 31.2, 54.0, int64(120)))

	agg, err := s.Aggregated(context.Background(), "s1", time.Minute)
	if err != nil {
		t.Fatalf("aggregated: %v", err)
	}
	if agg.AvgHeartRate != 142.5 || agg.DataPoints != 120 {
		t.Fatalf("unexpected aggregates %+v", agg)
	}
}

func TestStoreWithoutConnection(t *testing.T) {
	s := NewStore(nil)

	if err := s.InsertReading(context.Background(), SensorReading{}); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("insert: got %v", err)
	}
	if _, err := s.SessionReadings(context.Background(), "s1"); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("readings: got %v", err)
	}
	if _, err := s.Aggregated(context.Background(), "s1", time.Minute); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("aggregated: got %v", err)
	}
}
