package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name     string
	jsonType string
	timeType string
	realType string
	dollar   bool // $n placeholders instead of ?
}

var (
	postgresDialect = dialect{name: "postgres", jsonType: "JSONB", timeType: "TIMESTAMPTZ", realType: "DOUBLE PRECISION", dollar: true}
	sqliteDialect   = dialect{name: "sqlite", jsonType: "TEXT", timeType: "DATETIME", realType: "REAL"}
)

const schemaTmpl = `
CREATE TABLE IF NOT EXISTS runs (
    id            TEXT PRIMARY KEY,
    instance_name TEXT NOT NULL,
    status        TEXT NOT NULL,
    seed          BIGINT NOT NULL,
    cost          {{real}} NOT NULL DEFAULT 0,
    initial_cost  {{real}} NOT NULL DEFAULT 0,
    routes        {{json}},
    best_trace    {{json}},
    iter_trace    {{json}},
    metrics       {{json}},
    optimal_cost  {{real}},
    gap_percent   {{real}},
    stop_reason   TEXT NOT NULL DEFAULT '',
    error         TEXT NOT NULL DEFAULT '',
    created_at    {{time}} NOT NULL,
    finished_at   {{time}}
);
CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id              TEXT PRIMARY KEY,
    run_id          TEXT NOT NULL,
    event_type      TEXT NOT NULL,
    url             TEXT NOT NULL,
    secret          TEXT NOT NULL DEFAULT '',
    payload         {{json}} NOT NULL,
    status          TEXT NOT NULL,
    attempts        INTEGER NOT NULL DEFAULT 0,
    next_attempt_at {{time}} NOT NULL,
    last_error      TEXT NOT NULL DEFAULT '',
    response_code   INTEGER NOT NULL DEFAULT 0,
    created_at      {{time}} NOT NULL
);
CREATE INDEX IF NOT EXISTS webhook_deliveries_due ON webhook_deliveries (status, next_attempt_at);
CREATE INDEX IF NOT EXISTS webhook_deliveries_run ON webhook_deliveries (run_id)`

func (d dialect) schema() []string {
	s := strings.NewReplacer("{{json}}", d.jsonType, "{{time}}", d.timeType, "{{real}}", d.realType).Replace(schemaTmpl)
	var stmts []string
	for _, stmt := range strings.Split(s, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

// rebind rewrites ? placeholders as $1..$n for postgres.
func (d dialect) rebind(q string) string {
	if !d.dollar {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlStore implements Store on database/sql for both SQL backends.
type sqlStore struct {
	db *sql.DB
	d  dialect
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(q), args...)
}

// Migrate creates the tables when they do not exist.
func (s *sqlStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.d.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s migrate: %w", s.d.name, err)
		}
	}
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqlStore) Close() error                   { return s.db.Close() }

const runColumns = `id, instance_name, status, seed, cost, initial_cost, routes, best_trace, iter_trace, metrics,
    optimal_cost, gap_percent, stop_reason, error, created_at, finished_at`

func (s *sqlStore) CreateRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = StatusQueued
	}
	args, err := runArgs(r)
	if err != nil {
		return Run{}, err
	}
	_, err = s.exec(ctx, `INSERT INTO runs (`+runColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`, args...)
	if err != nil {
		return Run{}, err
	}
	return r, nil
}

func (s *sqlStore) UpdateRun(ctx context.Context, r Run) error {
	args, err := runArgs(r)
	if err != nil {
		return err
	}
	// args[0] is the id; move it to the WHERE clause
	args = append(args[1:], args[0])
	res, err := s.exec(ctx, `UPDATE runs SET instance_name=?, status=?, seed=?, cost=?, initial_cost=?, routes=?, best_trace=?,
        iter_trace=?, metrics=?, optimal_cost=?, gap_percent=?, stop_reason=?, error=?, created_at=?, finished_at=? WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, s.d.rebind(`SELECT `+runColumns+` FROM runs WHERE id=?`), id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *sqlStore) ListRuns(ctx context.Context, cursor string, limit int) ([]Run, string, error) {
	limit = clampLimit(limit)
	rows, err := s.db.QueryContext(ctx, s.d.rebind(`SELECT `+runColumns+` FROM runs WHERE id > ? ORDER BY id LIMIT ?`), cursor, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

func runArgs(r Run) ([]any, error) {
	routes, err := jsonArg(r.Routes)
	if err != nil {
		return nil, err
	}
	best, err := jsonArg(r.BestTrace)
	if err != nil {
		return nil, err
	}
	iter, err := jsonArg(r.IterTrace)
	if err != nil {
		return nil, err
	}
	var metrics any
	if len(r.Metrics) > 0 {
		metrics = string(r.Metrics)
	}
	var finished any
	if r.FinishedAt != nil {
		finished = r.FinishedAt.UTC()
	}
	return []any{
		r.ID, r.InstanceName, string(r.Status), r.Seed, r.Cost, r.InitialCost, routes, best, iter, metrics,
		nullFloat(r.OptimalCost), nullFloat(r.GapPercent), r.StopReason, r.Error, r.CreatedAt.UTC(), finished,
	}, nil
}

// jsonArg encodes a slice column, storing NULL for empty values.
func jsonArg[T any](v []T) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		r                      Run
		status                 string
		routes, best, iter, mx []byte
		optimal, gap           sql.NullFloat64
		finished               sql.NullTime
	)
	err := sc.Scan(&r.ID, &r.InstanceName, &status, &r.Seed, &r.Cost, &r.InitialCost, &routes, &best, &iter, &mx,
		&optimal, &gap, &r.StopReason, &r.Error, &r.CreatedAt, &finished)
	if err != nil {
		return Run{}, err
	}
	r.Status = Status(status)
	for _, col := range []struct {
		raw []byte
		dst any
	}{{routes, &r.Routes}, {best, &r.BestTrace}, {iter, &r.IterTrace}} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return Run{}, fmt.Errorf("run %s: %w", r.ID, err)
		}
	}
	if len(mx) > 0 {
		r.Metrics = json.RawMessage(mx)
	}
	if optimal.Valid {
		r.OptimalCost = &optimal.Float64
	}
	if gap.Valid {
		r.GapPercent = &gap.Float64
	}
	if finished.Valid {
		t := finished.Time.UTC()
		r.FinishedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

const deliveryColumns = `id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, last_error, response_code`

func (s *sqlStore) EnqueueWebhook(ctx context.Context, runID, eventType, url, secret string, payload []byte) (string, error) {
	id := newID()
	now := time.Now().UTC()
	_, err := s.exec(ctx, `INSERT INTO webhook_deliveries (id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, created_at)
        VALUES (?,?,?,?,?,?,?,0,?,?)`, id, runID, eventType, url, secret, string(payload), DeliveryPending, now, now)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *sqlStore) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries
        WHERE status IN (?, ?) AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`,
		DeliveryPending, DeliveryRetry, time.Now().UTC(), clampLimit(limit))
}

func (s *sqlStore) ListWebhookDeliveries(ctx context.Context, runID string) ([]WebhookDelivery, error) {
	return s.queryDeliveries(ctx, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE run_id=? ORDER BY id`, runID)
}

func (s *sqlStore) queryDeliveries(ctx context.Context, q string, args ...any) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, s.d.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.LastError, &d.ResponseCode); err != nil {
			return nil, err
		}
		d.NextAttemptAt = d.NextAttemptAt.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int) error {
	var res sql.Result
	var err error
	if success {
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, response_code=? WHERE id=?`,
			DeliveryDelivered, responseCode, id)
	} else {
		next := time.Now().UTC().Add(time.Minute)
		if nextAttemptAt != nil {
			next = nextAttemptAt.UTC()
		}
		res, err = s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, next_attempt_at=?, response_code=? WHERE id=?`,
			DeliveryRetry, lastError, next, responseCode, id)
	}
	return affected(res, err)
}

func (s *sqlStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int) error {
	res, err := s.exec(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status=?, last_error=?, response_code=? WHERE id=?`,
		DeliveryFailed, lastError, responseCode, id)
	return affected(res, err)
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
