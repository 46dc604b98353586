package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cardiosense/cardiosense/pkg/risk"
	"github.com/cardiosense/cardiosense/pkg/types"
	"github.com/cardiosense/cardiosense/server/internal/store"
)

const columns = "id, patient_id, ts, heart_rate, systolic, diastolic, spo2, temperature, " +
	"p_wave, pr_interval, qrs, qt_interval, t_wave, st_segment, " +
	"score, level, emergency, triggered, rule_set, explanation"

const numColumns = 20

// Store is a store.Log backed by a SQL database.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

var _ store.Log = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB, d Dialect, table string) *Store {
	return &Store{db: db, dialect: d, table: table}
}

// Open connects to the backend named by backend and pings it.
func Open(ctx context.Context, backend, dsn, table string) (*Store, error) {
	d, err := DialectFor(backend)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", d.Name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping %s: %w", d.Name, err)
	}
	return New(db, d, table), nil
}

// Name returns the backend name.
func (s *Store) Name() string { return s.dialect.Name }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Append inserts one reading.
func (s *Store) Append(ctx context.Context, r types.Reading) error {
	triggered, err := json.Marshal(r.Assessment.Triggered)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal triggered: %w", err)
	}
	v, a := r.Vitals, r.Assessment
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table, columns, s.dialect.placeholders(1, numColumns))
	_, err = s.db.ExecContext(ctx, q,
		r.ID, r.PatientID, r.Timestamp.UTC(),
		v.HeartRate, v.SystolicBP, v.DiastolicBP, v.OxygenSaturation, v.Temperature,
		v.PWaveDuration, v.PRInterval, v.QRSDuration, v.QTInterval, v.TWaveAmplitude, v.STSegmentElevation,
		a.Score, string(a.Level), a.Emergency, string(triggered), a.RuleSet, r.Explanation,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: insert reading %s: %w", r.ID, err)
	}
	return nil
}

// List returns readings matching q, newest first.
func (s *Store) List(ctx context.Context, q store.Query) ([]types.Reading, error) {
	var (
		where []string
		args  []any
	)
	if q.PatientID != "" {
		args = append(args, q.PatientID)
		where = append(where, "patient_id = "+s.dialect.placeholder(len(args)))
	}
	if !q.Since.IsZero() {
		args = append(args, q.Since.UTC())
		where = append(where, "ts >= "+s.dialect.placeholder(len(args)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", columns, s.table)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY ts DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		b.WriteString(" LIMIT " + s.dialect.placeholder(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list readings: %w", err)
	}
	defer rows.Close()

	out := make([]types.Reading, 0)
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: list readings: %w", err)
	}
	return out, nil
}

// Get returns the reading with the given ID.
func (s *Store) Get(ctx context.Context, id string) (types.Reading, bool, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", columns, s.table, s.dialect.placeholder(1))
	r, err := scanReading(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Reading{}, false, nil
	}
	if err != nil {
		return types.Reading{}, false, err
	}
	return r, true, nil
}

// Count returns the number of stored readings.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlstore: count readings: %w", err)
	}
	return n, nil
}

// Summary computes the report with aggregate queries.
func (s *Store) Summary(ctx context.Context) (store.Summary, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return store.Summary{}, err
	}
	if n == 0 {
		return store.EmptySummary(), nil
	}

	agg := store.Aggregate{Count: n}
	var emergencies int
	avg := s.dialect.avg
	q := fmt.Sprintf("SELECT %s, %s, %s, %s, %s, %s, SUM(CASE WHEN emergency THEN 1 ELSE 0 END) FROM %s",
		avg("heart_rate"), avg("systolic"), avg("diastolic"), avg("spo2"), avg("temperature"), avg("score"), s.table)
	if err := s.db.QueryRowContext(ctx, q).Scan(
		&agg.HeartRate, &agg.Systolic, &agg.Diastolic, &agg.SpO2, &agg.Temperature, &agg.Score, &emergencies,
	); err != nil {
		return store.Summary{}, fmt.Errorf("sqlstore: summary averages: %w", err)
	}

	dist, err := s.distribution(ctx)
	if err != nil {
		return store.Summary{}, err
	}

	top := &store.HighestRisk{}
	var level string
	q = fmt.Sprintf("SELECT id, score, level, ts FROM %s ORDER BY score DESC, ts ASC LIMIT 1", s.table)
	if err := s.db.QueryRowContext(ctx, q).Scan(&top.ID, &top.Score, &level, &top.Timestamp); err != nil {
		return store.Summary{}, fmt.Errorf("sqlstore: summary highest risk: %w", err)
	}
	top.Level = risk.Level(level)
	top.Timestamp = top.Timestamp.UTC()

	return agg.Build(dist, emergencies, top), nil
}

func (s *Store) distribution(ctx context.Context) (map[risk.Level]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT level, COUNT(*) FROM %s GROUP BY level", s.table))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: summary distribution: %w", err)
	}
	defer rows.Close()

	dist := make(map[risk.Level]int)
	for rows.Next() {
		var (
			level string
			n     int
		)
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("sqlstore: summary distribution: %w", err)
		}
		dist[risk.Level(level)] = n
	}
	return dist, rows.Err()
}

// Clear removes every reading.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.clear, s.table)); err != nil {
		return fmt.Errorf("sqlstore: clear %s: %w", s.table, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReading(sc scanner) (types.Reading, error) {
	var (
		r         types.Reading
		level     string
		triggered string
		ts        time.Time
	)
	v, a := &r.Vitals, &r.Assessment
	err := sc.Scan(
		&r.ID, &r.PatientID, &ts,
		&v.HeartRate, &v.SystolicBP, &v.DiastolicBP, &v.OxygenSaturation, &v.Temperature,
		&v.PWaveDuration, &v.PRInterval, &v.QRSDuration, &v.QTInterval, &v.TWaveAmplitude, &v.STSegmentElevation,
		&a.Score, &level, &a.Emergency, &triggered, &a.RuleSet, &r.Explanation,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("sqlstore: scan reading: %w", err)
	}
	r.Timestamp = ts.UTC()
	a.Level = risk.Level(level)
	if err := json.Unmarshal([]byte(triggered), &a.Triggered); err != nil {
		return r, fmt.Errorf("sqlstore: reading %s: triggered: %w", r.ID, err)
	}
	if a.Triggered == nil {
		a.Triggered = []string{}
	}
	return r, nil
}
