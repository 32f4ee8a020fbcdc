package repo

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/congresstwin/congresstwin/internal/domain"
	"github.com/congresstwin/congresstwin/internal/errors"
)

//go:embed schema.sql
var schemaFS embed.FS

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLite is the durable backend. A zero EventID/ActionID is assigned
// by the AUTOINCREMENT columns.
type SQLite struct {
	db *sql.DB
	q  querier
}

// OpenSQLite opens (creating if needed) the database at path and
// applies the schema. Transactions take the write lock immediately so
// concurrent writers queue instead of failing on upgrade.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New(errors.KindValidation, errors.ErrCodeStoreOpenFailed, "db path is required")
	}
	db, err := sql.Open("sqlite", path+"?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.Wrap(errors.KindInternal, errors.ErrCodeStoreOpenFailed, "open database", err)
	}
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindInternal, errors.ErrCodeStoreOpenFailed, "read schema", err)
	}
	if _, err := db.ExecContext(context.Background(), string(schemaSQL)); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.KindInternal, errors.ErrCodeStoreOpenFailed, "apply schema", err)
	}
	return &SQLite{db: db, q: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// Update runs fn inside one transaction.
func (s *SQLite) Update(ctx context.Context, fn func(tx Store) error) error {
	if s.q != querier(s.db) {
		return errors.New(errors.KindInternal, errors.ErrCodeTxFailed, "nested transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.KindInternal, errors.ErrCodeTxFailed, "begin transaction", err)
	}
	if err := fn(&SQLite{db: s.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.KindInternal, errors.ErrCodeTxFailed, "commit transaction", err)
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func encTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func encTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return encTime(*t)
}

func decTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func decTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := decTime(s.String)
	return &t
}

func encJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func decStrings(s string) []string {
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func decMap(s string) map[string]any {
	var out map[string]any
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func readFail(op string, err error) error {
	return errors.Wrap(errors.KindInternal, errors.ErrCodeStoreReadFailed, op, err)
}

func writeFail(op string, err error) error {
	return errors.Wrap(errors.KindInternal, errors.ErrCodeStoreWriteFailed, op, err)
}

func (s *SQLite) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT id, name, event_date, source_plan_id, created_at FROM plans ORDER BY id")
	if err != nil {
		return nil, readFail("list plans", err)
	}
	defer rows.Close()

	var out []domain.Plan
	for rows.Next() {
		var p domain.Plan
		var eventDate sql.NullString
		var createdAt string
		if err := rows.Scan(&p.ID, &p.Name, &eventDate, &p.SourcePlanID, &createdAt); err != nil {
			return nil, readFail("scan plan", err)
		}
		p.EventDate = decTimePtr(eventDate)
		p.CreatedAt = decTime(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) getPlan(ctx context.Context, planID string) (domain.Plan, error) {
	var p domain.Plan
	var eventDate sql.NullString
	var createdAt string
	err := s.q.QueryRowContext(ctx,
		"SELECT id, name, event_date, source_plan_id, created_at FROM plans WHERE id = ?",
		planID).Scan(&p.ID, &p.Name, &eventDate, &p.SourcePlanID, &createdAt)
	if err == sql.ErrNoRows {
		return domain.Plan{}, errors.NewPlanNotFound(planID)
	}
	if err != nil {
		return domain.Plan{}, readFail("get plan", err)
	}
	p.EventDate = decTimePtr(eventDate)
	p.CreatedAt = decTime(createdAt)
	return p, nil
}

func (s *SQLite) GetSnapshot(ctx context.Context, planID string) (*domain.Snapshot, error) {
	plan, err := s.getPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	snap := &domain.Snapshot{Plan: plan, Subtasks: make(map[string][]domain.Subtask)}

	brows, err := s.q.QueryContext(ctx,
		"SELECT id, name, order_hint FROM buckets WHERE plan_id = ? ORDER BY id", planID)
	if err != nil {
		return nil, readFail("list buckets", err)
	}
	defer brows.Close()
	for brows.Next() {
		b := domain.Bucket{PlanID: planID}
		if err := brows.Scan(&b.ID, &b.Name, &b.OrderHint); err != nil {
			return nil, readFail("scan bucket", err)
		}
		snap.Buckets = append(snap.Buckets, b)
	}
	if err := brows.Err(); err != nil {
		return nil, readFail("list buckets", err)
	}

	trows, err := s.q.QueryContext(ctx, `
		SELECT id, title, bucket_id, status, percent_complete, start_at, due_at,
		       completed_at, priority, assignees, categories, description,
		       order_hint, created_at, modified_at, created_by, completed_by
		FROM tasks WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, readFail("list tasks", err)
	}
	defer trows.Close()
	for trows.Next() {
		t := domain.Task{PlanID: planID}
		var startAt, dueAt, completedAt sql.NullString
		var assignees, categories, createdAt, modifiedAt string
		if err := trows.Scan(&t.ID, &t.Title, &t.BucketID, &t.Status, &t.PercentComplete,
			&startAt, &dueAt, &completedAt, &t.Priority, &assignees, &categories,
			&t.Description, &t.OrderHint, &createdAt, &modifiedAt, &t.CreatedBy,
			&t.CompletedBy); err != nil {
			return nil, readFail("scan task", err)
		}
		t.StartAt = decTimePtr(startAt)
		t.DueAt = decTimePtr(dueAt)
		t.CompletedAt = decTimePtr(completedAt)
		t.Assignees = decStrings(assignees)
		t.Categories = decStrings(categories)
		t.CreatedAt = decTime(createdAt)
		t.ModifiedAt = decTime(modifiedAt)
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := trows.Err(); err != nil {
		return nil, readFail("list tasks", err)
	}

	srows, err := s.q.QueryContext(ctx,
		"SELECT task_id, id, title, checked, order_hint, modified_at FROM subtasks WHERE plan_id = ? ORDER BY task_id, id", planID)
	if err != nil {
		return nil, readFail("list subtasks", err)
	}
	defer srows.Close()
	for srows.Next() {
		st := domain.Subtask{PlanID: planID}
		var modifiedAt string
		if err := srows.Scan(&st.TaskID, &st.ID, &st.Title, &st.Checked, &st.OrderHint, &modifiedAt); err != nil {
			return nil, readFail("scan subtask", err)
		}
		st.ModifiedAt = decTime(modifiedAt)
		snap.Subtasks[st.TaskID] = append(snap.Subtasks[st.TaskID], st)
	}
	if err := srows.Err(); err != nil {
		return nil, readFail("list subtasks", err)
	}

	drows, err := s.q.QueryContext(ctx,
		"SELECT predecessor_id, successor_id, dep_type FROM dependencies WHERE plan_id = ? ORDER BY predecessor_id, successor_id", planID)
	if err != nil {
		return nil, readFail("list dependencies", err)
	}
	defer drows.Close()
	for drows.Next() {
		d := domain.Dependency{PlanID: planID}
		if err := drows.Scan(&d.PredecessorID, &d.SuccessorID, &d.Type); err != nil {
			return nil, readFail("scan dependency", err)
		}
		snap.Dependencies = append(snap.Dependencies, d)
	}
	return snap, drows.Err()
}

func (s *SQLite) PutPlan(ctx context.Context, p domain.Plan) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO plans (id, name, event_date, source_plan_id, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			event_date = excluded.event_date,
			source_plan_id = excluded.source_plan_id`,
		p.ID, p.Name, encTimePtr(p.EventDate), p.SourcePlanID, encTime(p.CreatedAt))
	if err != nil {
		return writeFail("put plan", err)
	}
	return nil
}

func (s *SQLite) DeletePlan(ctx context.Context, planID string) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM plans WHERE id = ?", planID)
	if err != nil {
		return writeFail("delete plan", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewPlanNotFound(planID)
	}
	return nil
}

func (s *SQLite) requirePlan(ctx context.Context, planID string) error {
	var one int
	err := s.q.QueryRowContext(ctx, "SELECT 1 FROM plans WHERE id = ?", planID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.NewPlanNotFound(planID)
	}
	if err != nil {
		return readFail("check plan", err)
	}
	return nil
}

func (s *SQLite) PutBucket(ctx context.Context, b domain.Bucket) error {
	if err := s.requirePlan(ctx, b.PlanID); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO buckets (plan_id, id, name, order_hint) VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET
			name = excluded.name, order_hint = excluded.order_hint`,
		b.PlanID, b.ID, b.Name, b.OrderHint)
	if err != nil {
		return writeFail("put bucket", err)
	}
	return nil
}

func (s *SQLite) DeleteBucket(ctx context.Context, planID, bucketID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM buckets WHERE plan_id = ? AND id = ?", planID, bucketID)
	if err != nil {
		return writeFail("delete bucket", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeBucketNotFound,
			"bucket not found: %s/%s", planID, bucketID)
	}
	return nil
}

func (s *SQLite) PutTask(ctx context.Context, t domain.Task) error {
	if err := s.requirePlan(ctx, t.PlanID); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tasks (plan_id, id, title, bucket_id, status, percent_complete,
			start_at, due_at, completed_at, priority, assignees, categories,
			description, order_hint, created_at, modified_at, created_by, completed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, id) DO UPDATE SET
			title = excluded.title,
			bucket_id = excluded.bucket_id,
			status = excluded.status,
			percent_complete = excluded.percent_complete,
			start_at = excluded.start_at,
			due_at = excluded.due_at,
			completed_at = excluded.completed_at,
			priority = excluded.priority,
			assignees = excluded.assignees,
			categories = excluded.categories,
			description = excluded.description,
			order_hint = excluded.order_hint,
			modified_at = excluded.modified_at,
			completed_by = excluded.completed_by`,
		t.PlanID, t.ID, t.Title, t.BucketID, string(t.Status), t.PercentComplete,
		encTimePtr(t.StartAt), encTimePtr(t.DueAt), encTimePtr(t.CompletedAt),
		t.Priority, encJSON(t.Assignees), encJSON(t.Categories), t.Description,
		t.OrderHint, encTime(t.CreatedAt), encTime(t.ModifiedAt), t.CreatedBy, t.CompletedBy)
	if err != nil {
		return writeFail("put task", err)
	}
	return nil
}

func (s *SQLite) DeleteTask(ctx context.Context, planID, taskID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM tasks WHERE plan_id = ? AND id = ?", planID, taskID)
	if err != nil {
		return writeFail("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewTaskNotFound(planID, taskID)
	}
	// Dangling edges and locks go with the task.
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM dependencies WHERE plan_id = ? AND (predecessor_id = ? OR successor_id = ?)",
		planID, taskID, taskID); err != nil {
		return writeFail("delete task dependencies", err)
	}
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM locks WHERE plan_id = ? AND task_id = ?", planID, taskID); err != nil {
		return writeFail("delete task lock", err)
	}
	return nil
}

func (s *SQLite) PutSubtask(ctx context.Context, st domain.Subtask) error {
	var one int
	err := s.q.QueryRowContext(ctx,
		"SELECT 1 FROM tasks WHERE plan_id = ? AND id = ?", st.PlanID, st.TaskID).Scan(&one)
	if err == sql.ErrNoRows {
		return errors.NewTaskNotFound(st.PlanID, st.TaskID)
	}
	if err != nil {
		return readFail("check task", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO subtasks (plan_id, task_id, id, title, checked, order_hint, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, task_id, id) DO UPDATE SET
			title = excluded.title,
			checked = excluded.checked,
			order_hint = excluded.order_hint,
			modified_at = excluded.modified_at`,
		st.PlanID, st.TaskID, st.ID, st.Title, st.Checked, st.OrderHint, encTime(st.ModifiedAt))
	if err != nil {
		return writeFail("put subtask", err)
	}
	return nil
}

func (s *SQLite) DeleteSubtask(ctx context.Context, planID, taskID, subtaskID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM subtasks WHERE plan_id = ? AND task_id = ? AND id = ?",
		planID, taskID, subtaskID)
	if err != nil {
		return writeFail("delete subtask", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeSubtaskNotFound,
			"subtask not found: %s/%s/%s", planID, taskID, subtaskID)
	}
	return nil
}

func (s *SQLite) PutDependency(ctx context.Context, d domain.Dependency) error {
	if err := s.requirePlan(ctx, d.PlanID); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO dependencies (plan_id, predecessor_id, successor_id, dep_type)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plan_id, predecessor_id, successor_id) DO UPDATE SET
			dep_type = excluded.dep_type`,
		d.PlanID, d.PredecessorID, d.SuccessorID, string(d.Type))
	if err != nil {
		return writeFail("put dependency", err)
	}
	return nil
}

func (s *SQLite) DeleteDependency(ctx context.Context, planID, predecessorID, successorID string) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM dependencies WHERE plan_id = ? AND predecessor_id = ? AND successor_id = ?",
		planID, predecessorID, successorID)
	if err != nil {
		return writeFail("delete dependency", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeDependencyNotFound,
			"dependency not found: %s: %s -> %s", planID, predecessorID, successorID)
	}
	return nil
}

func (s *SQLite) ListSamples(ctx context.Context) ([]domain.HistoricalSample, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT bucket, task_type, planned_days, actual_days, assignees, terminal_state, block_count
		FROM samples ORDER BY id`)
	if err != nil {
		return nil, readFail("list samples", err)
	}
	defer rows.Close()

	var out []domain.HistoricalSample
	for rows.Next() {
		var smp domain.HistoricalSample
		var assignees string
		if err := rows.Scan(&smp.Bucket, &smp.TaskType, &smp.PlannedDays, &smp.ActualDays,
			&assignees, &smp.Terminal, &smp.BlockCount); err != nil {
			return nil, readFail("scan sample", err)
		}
		smp.Assignees = decStrings(assignees)
		out = append(out, smp)
	}
	return out, rows.Err()
}

func (s *SQLite) AddSamples(ctx context.Context, samples []domain.HistoricalSample) error {
	for _, smp := range samples {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO samples (bucket, task_type, planned_days, actual_days, assignees, terminal_state, block_count)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			smp.Bucket, smp.TaskType, smp.PlannedDays, smp.ActualDays,
			encJSON(smp.Assignees), string(smp.Terminal), smp.BlockCount)
		if err != nil {
			return writeFail("add sample", err)
		}
	}
	return nil
}

func (s *SQLite) ListLocks(ctx context.Context) ([]domain.TaskLock, error) {
	rows, err := s.q.QueryContext(ctx,
		"SELECT plan_id, task_id, holder_id, acquired_at, ttl_seconds FROM locks ORDER BY plan_id, task_id")
	if err != nil {
		return nil, readFail("list locks", err)
	}
	defer rows.Close()

	var out []domain.TaskLock
	for rows.Next() {
		var l domain.TaskLock
		var acquiredAt string
		var ttlSeconds int64
		if err := rows.Scan(&l.PlanID, &l.TaskID, &l.HolderID, &acquiredAt, &ttlSeconds); err != nil {
			return nil, readFail("scan lock", err)
		}
		l.AcquiredAt = decTime(acquiredAt)
		l.TTL = time.Duration(ttlSeconds) * time.Second
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLite) PutLock(ctx context.Context, l domain.TaskLock) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO locks (plan_id, task_id, holder_id, acquired_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id, task_id) DO UPDATE SET
			holder_id = excluded.holder_id,
			acquired_at = excluded.acquired_at,
			ttl_seconds = excluded.ttl_seconds`,
		l.PlanID, l.TaskID, l.HolderID, encTime(l.AcquiredAt), int64(l.TTL/time.Second))
	if err != nil {
		return writeFail("put lock", err)
	}
	return nil
}

func (s *SQLite) DeleteLock(ctx context.Context, planID, taskID string) error {
	if _, err := s.q.ExecContext(ctx,
		"DELETE FROM locks WHERE plan_id = ? AND task_id = ?", planID, taskID); err != nil {
		return writeFail("delete lock", err)
	}
	return nil
}

func (s *SQLite) PutEvent(ctx context.Context, e domain.ExternalEvent) (domain.ExternalEvent, error) {
	if err := s.requirePlan(ctx, e.PlanID); err != nil {
		return domain.ExternalEvent{}, err
	}
	if e.ID == 0 {
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO events (plan_id, event_type, title, description, severity,
				affected_task_ids, payload, created_at, acknowledged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.PlanID, e.Type, e.Title, e.Description, string(e.Severity),
			encJSON(e.AffectedTaskIDs), encJSON(e.Payload), encTime(e.CreatedAt),
			encTimePtr(e.AcknowledgedAt))
		if err != nil {
			return domain.ExternalEvent{}, writeFail("insert event", err)
		}
		e.ID, _ = res.LastInsertId()
		return e, nil
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO events (id, plan_id, event_type, title, description,
			severity, affected_task_ids, payload, created_at, acknowledged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PlanID, e.Type, e.Title, e.Description, string(e.Severity),
		encJSON(e.AffectedTaskIDs), encJSON(e.Payload), encTime(e.CreatedAt),
		encTimePtr(e.AcknowledgedAt))
	if err != nil {
		return domain.ExternalEvent{}, writeFail("update event", err)
	}
	return e, nil
}

func (s *SQLite) GetEvent(ctx context.Context, planID string, eventID int64) (domain.ExternalEvent, error) {
	var e domain.ExternalEvent
	var affected, payload, createdAt string
	var acknowledgedAt sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT id, plan_id, event_type, title, description, severity,
		       affected_task_ids, payload, created_at, acknowledged_at
		FROM events WHERE plan_id = ? AND id = ?`, planID, eventID).
		Scan(&e.ID, &e.PlanID, &e.Type, &e.Title, &e.Description, &e.Severity,
			&affected, &payload, &createdAt, &acknowledgedAt)
	if err == sql.ErrNoRows {
		return domain.ExternalEvent{}, errors.Newf(errors.KindNotFound, errors.ErrCodeEventNotFound,
			"event not found: %s/%d", planID, eventID)
	}
	if err != nil {
		return domain.ExternalEvent{}, readFail("get event", err)
	}
	e.AffectedTaskIDs = decStrings(affected)
	e.Payload = decMap(payload)
	e.CreatedAt = decTime(createdAt)
	e.AcknowledgedAt = decTimePtr(acknowledgedAt)
	return e, nil
}

func (s *SQLite) ListEvents(ctx context.Context, planID string) ([]domain.ExternalEvent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, plan_id, event_type, title, description, severity,
		       affected_task_ids, payload, created_at, acknowledged_at
		FROM events WHERE plan_id = ? ORDER BY id`, planID)
	if err != nil {
		return nil, readFail("list events", err)
	}
	defer rows.Close()

	var out []domain.ExternalEvent
	for rows.Next() {
		var e domain.ExternalEvent
		var affected, payload, createdAt string
		var acknowledgedAt sql.NullString
		if err := rows.Scan(&e.ID, &e.PlanID, &e.Type, &e.Title, &e.Description,
			&e.Severity, &affected, &payload, &createdAt, &acknowledgedAt); err != nil {
			return nil, readFail("scan event", err)
		}
		e.AffectedTaskIDs = decStrings(affected)
		e.Payload = decMap(payload)
		e.CreatedAt = decTime(createdAt)
		e.AcknowledgedAt = decTimePtr(acknowledgedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteEvent(ctx context.Context, planID string, eventID int64) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM events WHERE plan_id = ? AND id = ?", planID, eventID)
	if err != nil {
		return writeFail("delete event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeEventNotFound,
			"event not found: %s/%d", planID, eventID)
	}
	return nil
}

func (s *SQLite) PutAction(ctx context.Context, a domain.ProposedAction) (domain.ProposedAction, error) {
	if err := s.requirePlan(ctx, a.PlanID); err != nil {
		return domain.ProposedAction{}, err
	}
	if a.ID == 0 {
		res, err := s.q.ExecContext(ctx, `
			INSERT INTO actions (plan_id, event_id, task_id, action_type, title,
				description, payload, status, created_at, decided_at, decided_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.PlanID, a.EventID, a.TaskID, a.Type, a.Title, a.Description,
			encJSON(a.Payload), string(a.Status), encTime(a.CreatedAt),
			encTimePtr(a.DecidedAt), a.DecidedBy)
		if err != nil {
			return domain.ProposedAction{}, writeFail("insert action", err)
		}
		a.ID, _ = res.LastInsertId()
		return a, nil
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO actions (id, plan_id, event_id, task_id, action_type,
			title, description, payload, status, created_at, decided_at, decided_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PlanID, a.EventID, a.TaskID, a.Type, a.Title, a.Description,
		encJSON(a.Payload), string(a.Status), encTime(a.CreatedAt),
		encTimePtr(a.DecidedAt), a.DecidedBy)
	if err != nil {
		return domain.ProposedAction{}, writeFail("update action", err)
	}
	return a, nil
}

func (s *SQLite) GetAction(ctx context.Context, planID string, actionID int64) (domain.ProposedAction, error) {
	var a domain.ProposedAction
	var payload, createdAt string
	var decidedAt sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT id, plan_id, event_id, task_id, action_type, title, description,
		       payload, status, created_at, decided_at, decided_by
		FROM actions WHERE plan_id = ? AND id = ?`, planID, actionID).
		Scan(&a.ID, &a.PlanID, &a.EventID, &a.TaskID, &a.Type, &a.Title,
			&a.Description, &payload, &a.Status, &createdAt, &decidedAt, &a.DecidedBy)
	if err == sql.ErrNoRows {
		return domain.ProposedAction{}, errors.Newf(errors.KindNotFound, errors.ErrCodeActionNotFound,
			"action not found: %s/%d", planID, actionID)
	}
	if err != nil {
		return domain.ProposedAction{}, readFail("get action", err)
	}
	a.Payload = decMap(payload)
	a.CreatedAt = decTime(createdAt)
	a.DecidedAt = decTimePtr(decidedAt)
	return a, nil
}

func (s *SQLite) ListActions(ctx context.Context, planID string, eventID int64) ([]domain.ProposedAction, error) {
	query := `
		SELECT id, plan_id, event_id, task_id, action_type, title, description,
		       payload, status, created_at, decided_at, decided_by
		FROM actions WHERE plan_id = ?`
	args := []any{planID}
	if eventID != 0 {
		query += " AND event_id = ?"
		args = append(args, eventID)
	}
	query += " ORDER BY id"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, readFail("list actions", err)
	}
	defer rows.Close()

	var out []domain.ProposedAction
	for rows.Next() {
		var a domain.ProposedAction
		var payload, createdAt string
		var decidedAt sql.NullString
		if err := rows.Scan(&a.ID, &a.PlanID, &a.EventID, &a.TaskID, &a.Type, &a.Title,
			&a.Description, &payload, &a.Status, &createdAt, &decidedAt, &a.DecidedBy); err != nil {
			return nil, readFail("scan action", err)
		}
		a.Payload = decMap(payload)
		a.CreatedAt = decTime(createdAt)
		a.DecidedAt = decTimePtr(decidedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLite) DeleteAction(ctx context.Context, planID string, actionID int64) error {
	res, err := s.q.ExecContext(ctx,
		"DELETE FROM actions WHERE plan_id = ? AND id = ?", planID, actionID)
	if err != nil {
		return writeFail("delete action", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Newf(errors.KindNotFound, errors.ErrCodeActionNotFound,
			"action not found: %s/%d", planID, actionID)
	}
	return nil
}

func (s *SQLite) GetSyncState(ctx context.Context, planID string) (domain.SyncState, error) {
	st := domain.SyncState{PlanID: planID}
	var lastSync, prevSync sql.NullString
	err := s.q.QueryRowContext(ctx, `
		SELECT last_sync_at, previous_sync_at, fingerprint, dirty
		FROM sync_state WHERE plan_id = ?`, planID).
		Scan(&lastSync, &prevSync, &st.Fingerprint, &st.Dirty)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return domain.SyncState{}, readFail("get sync state", err)
	}
	st.LastSyncAt = decTimePtr(lastSync)
	st.PreviousSyncAt = decTimePtr(prevSync)
	return st, nil
}

func (s *SQLite) PutSyncState(ctx context.Context, st domain.SyncState) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sync_state (plan_id, last_sync_at, previous_sync_at, fingerprint, dirty)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(plan_id) DO UPDATE SET
			last_sync_at = excluded.last_sync_at,
			previous_sync_at = excluded.previous_sync_at,
			fingerprint = excluded.fingerprint,
			dirty = excluded.dirty`,
		st.PlanID, encTimePtr(st.LastSyncAt), encTimePtr(st.PreviousSyncAt),
		st.Fingerprint, st.Dirty)
	if err != nil {
		return writeFail("put sync state", err)
	}
	return nil
}
