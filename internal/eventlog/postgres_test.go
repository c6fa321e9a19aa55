package eventlog_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/MrWong99/ringwatch/internal/detect"
	"github.com/MrWong99/ringwatch/internal/eventlog"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockRows implements pgx.Rows for testing.
type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		case *float64:
			*d = v.(float64)
		case *bool:
			*d = v.(bool)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockDB implements eventlog.DB for testing.
type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		var gotSQL string
		db := &mockDB{
			execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
				gotSQL = sql
				return pgconn.CommandTag{}, nil
			},
		}
		if err := eventlog.NewPostgresStore(db).Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		if !strings.Contains(gotSQL, "CREATE TABLE IF NOT EXISTS detection_events") {
			t.Errorf("Migrate executed unexpected SQL: %s", gotSQL)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("permission denied")
		db := &mockDB{
			execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
				return pgconn.CommandTag{}, boom
			},
		}
		err := eventlog.NewPostgresStore(db).Migrate(context.Background())
		if !errors.Is(err, boom) {
			t.Errorf("Migrate error = %v, want wrapping %v", err, boom)
		}
	})
}

func TestPostgresStore_Record(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("5b0f4c9a-8d8e-4a43-9d55-7f2e9c1a2b3c")
	at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	var gotArgs []any
	db := &mockDB{
		execFunc: func(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			if !strings.Contains(sql, "INSERT INTO detection_events") {
				t.Errorf("unexpected SQL: %s", sql)
			}
			gotArgs = args
			return pgconn.CommandTag{}, nil
		},
	}
	s := eventlog.NewPostgresStore(db)
	e := eventlog.Entry{
		Event:       detect.Event{ID: id, At: at, Mode: detect.ModeFrequency, Targets: []float64{502, 648}},
		NotifyError: "all entries failed",
	}
	if err := s.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}

	want := []any{
		id.String(), at, detect.ModeFrequency, 0.0, []byte("[502,648]"),
		false, "all entries failed", false,
	}
	if diff := cmp.Diff(want, gotArgs); diff != "" {
		t.Errorf("Record args mismatch (-want +got):\n%s", diff)
	}
}

func TestPostgresStore_RecordNilTargets(t *testing.T) {
	t.Parallel()

	var targets []byte
	db := &mockDB{
		execFunc: func(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
			targets = args[4].([]byte)
			return pgconn.CommandTag{}, nil
		},
	}
	e := eventlog.Entry{Event: detect.Event{ID: uuid.New(), Mode: detect.ModePattern, Similarity: 0.12}}
	if err := eventlog.NewPostgresStore(db).Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if string(targets) != "[]" {
		t.Errorf("targets = %s, want []", targets)
	}
}

func TestPostgresStore_Recent(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("5b0f4c9a-8d8e-4a43-9d55-7f2e9c1a2b3c")
	at := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)

	rows := &mockRows{data: [][]any{
		{id.String(), at, detect.ModeFrequency, 0.0, []byte("[502,648]"), true, "", true},
		{id.String(), at.Add(-time.Hour), detect.ModePattern, 0.21, []byte("[]"), false, "down", false},
	}}
	var gotLimit any
	db := &mockDB{
		queryFunc: func(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
			gotLimit = args[0]
			return rows, nil
		},
	}

	got, err := eventlog.NewPostgresStore(db).Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if gotLimit != eventlog.DefaultLimit {
		t.Errorf("limit = %v, want %d", gotLimit, eventlog.DefaultLimit)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}

	want := []eventlog.Entry{
		{
			Event:    detect.Event{ID: id, At: at, Mode: detect.ModeFrequency, Targets: []float64{502, 648}},
			Notified: true,
			Snapshot: true,
		},
		{
			Event:       detect.Event{ID: id, At: at.Add(-time.Hour), Mode: detect.ModePattern, Similarity: 0.21},
			NotifyError: "down",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent mismatch (-want +got):\n%s", diff)
	}
}

func TestPostgresStore_RecentErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		db   *mockDB
	}{
		{
			name: "query error",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return nil, errors.New("connection refused")
			}},
		},
		{
			name: "rows error",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return &mockRows{err: errors.New("broken pipe")}, nil
			}},
		},
		{
			name: "bad id",
			db: &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
				return &mockRows{data: [][]any{
					{"not-a-uuid", time.Now(), "frequency", 0.0, []byte("[]"), false, "", false},
				}}, nil
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := eventlog.NewPostgresStore(tt.db).Recent(context.Background(), 5); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	ok := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*int) = 1
			return nil
		}}
	}}
	if err := eventlog.NewPostgresStore(ok).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	down := &mockDB{}
	if err := eventlog.NewPostgresStore(down).Ping(context.Background()); err == nil {
		t.Error("Ping on failing db: expected error")
	}
}
