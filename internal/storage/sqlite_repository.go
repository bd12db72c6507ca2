package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/ritmohq/ritmo/internal/model"
)

// Timestamps are stored with zero-padded nanoseconds so the TEXT
// columns compare chronologically; RFC3339Nano trims trailing zeros and
// breaks lexicographic ordering around whole seconds.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

const habitColumns = `id, user_id, name, description, icon, color, target_count,
	frequency_kind, weekdays, interval_days, streak, best_streak, next_due,
	is_active, created_at, updated_at`

func (r *SQLiteRepository) CreateHabit(ctx context.Context, habit model.Habit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		habitArgs(habit)...,
	)
	return err
}

func (r *SQLiteRepository) GetHabit(ctx context.Context, id string) (model.Habit, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+habitColumns+` FROM habits WHERE id = ?`, id)
	habit, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Habit{}, ErrNotFound
		}
		return model.Habit{}, err
	}
	return habit, nil
}

func (r *SQLiteRepository) UpdateHabit(ctx context.Context, habit model.Habit) error {
	args := habitArgs(habit)[1:]
	args = append(args, habit.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE habits
		SET user_id = ?, name = ?, description = ?, icon = ?, color = ?, target_count = ?,
			frequency_kind = ?, weekdays = ?, interval_days = ?, streak = ?, best_streak = ?,
			next_due = ?, is_active = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListHabits(ctx context.Context, filter HabitFilter) ([]model.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Habit, 0)
	for rows.Next() {
		habit, scanErr := scanHabit(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, habit)
	}
	return out, rows.Err()
}

const taskColumns = `id, user_id, description, status, energy_points, project_id,
	is_recurring, frequency_kind, weekdays, interval_days, streak, best_streak, next_due,
	planned_for_today, planned_date, due_date, missed_days,
	postpone_count, postpone_reason, postponed_at, reschedule_date,
	completed_at, created_at, updated_at, is_deleted`

func (r *SQLiteRepository) CreateTask(ctx context.Context, task model.Task) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskArgs(task)...,
	)
	return err
}

func (r *SQLiteRepository) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Task{}, ErrNotFound
		}
		return model.Task{}, err
	}
	return task, nil
}

func (r *SQLiteRepository) UpdateTask(ctx context.Context, task model.Task) error {
	return updateTask(ctx, r.db, task)
}

func (r *SQLiteRepository) ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	clauses := []string{"is_deleted = 0"}
	args := make([]any, 0, 4)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RecurringOnly {
		clauses = append(clauses, "is_recurring = 1")
	}
	if !filter.PlannedBefore.IsZero() {
		clauses = append(clauses, "planned_for_today = 1 AND planned_date IS NOT NULL AND planned_date < ?")
		args = append(args, filter.PlannedBefore.String())
	}
	query += " WHERE " + strings.Join(clauses, " AND ")
	query += ` ORDER BY created_at ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Task, 0)
	for rows.Next() {
		task, scanErr := scanTask(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

const completionColumns = `id, entity_id, day, count, notes, completed_at`

func (r *SQLiteRepository) GetCompletion(ctx context.Context, entityID string, day model.Day) (model.Completion, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+completionColumns+` FROM completions WHERE entity_id = ? AND day = ?`,
		entityID, day.String())
	completion, err := scanCompletion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Completion{}, ErrNotFound
		}
		return model.Completion{}, err
	}
	return completion, nil
}

func (r *SQLiteRepository) CreateCompletion(ctx context.Context, completion model.Completion) error {
	return insertCompletion(ctx, r.db, completion)
}

func (r *SQLiteRepository) IncrementCompletion(ctx context.Context, entityID string, day model.Day, count int, notes string) (model.Completion, error) {
	query := `UPDATE completions SET count = count + ?`
	args := []any{count}
	if notes != "" {
		query += `, notes = ?`
		args = append(args, notes)
	}
	query += ` WHERE entity_id = ? AND day = ?`
	args = append(args, entityID, day.String())

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return model.Completion{}, err
	}
	if err := checkRowsAffected(res); err != nil {
		return model.Completion{}, err
	}
	return r.GetCompletion(ctx, entityID, day)
}

func (r *SQLiteRepository) ListCompletions(ctx context.Context, entityID string, since model.Day) ([]model.Completion, error) {
	query := `SELECT ` + completionColumns + ` FROM completions WHERE entity_id = ?`
	args := []any{entityID}
	if !since.IsZero() {
		query += ` AND day >= ?`
		args = append(args, since.String())
	}
	query += ` ORDER BY day DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Completion, 0)
	for rows.Next() {
		completion, scanErr := scanCompletion(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, completion)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveHabitCompletion(ctx context.Context, completion model.Completion, habit model.Habit) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertCompletion(ctx, tx, completion); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE habits SET streak = ?, best_streak = ?, next_due = ?, updated_at = ?
			WHERE id = ?`,
			habit.Streak, habit.BestStreak, nullDay(habit.NextDue), mustTime(habit.UpdatedAt), habit.ID)
		if err != nil {
			return err
		}
		return checkRowsAffected(res)
	})
}

func (r *SQLiteRepository) SaveTaskCompletion(ctx context.Context, completion model.Completion, task model.Task, entry model.HistoryEntry) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertCompletion(ctx, tx, completion); err != nil {
			return err
		}
		if err := updateTask(ctx, tx, task); err != nil {
			return err
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (r *SQLiteRepository) AppendHistory(ctx context.Context, entry model.HistoryEntry) error {
	return insertHistory(ctx, r.db, entry)
}

func (r *SQLiteRepository) ListHistory(ctx context.Context, taskID string, limit int) ([]model.HistoryEntry, error) {
	query := `SELECT id, task_id, action, details, timestamp FROM task_history WHERE task_id = ? ORDER BY timestamp DESC`
	args := []any{taskID}
	query += applyPagination(&args, limit, 0)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.HistoryEntry, 0)
	for rows.Next() {
		entry, scanErr := scanHistory(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) HasHistorySince(ctx context.Context, taskID string, action model.HistoryAction, since time.Time) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM task_history WHERE task_id = ? AND action = ? AND timestamp >= ?`,
		taskID, string(action), mustTime(since))
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *SQLiteRepository) SumPlannedEnergy(ctx context.Context, userID string, day model.Day) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(energy_points), 0) FROM tasks
		WHERE user_id = ? AND is_deleted = 0 AND planned_for_today = 1 AND planned_date = ?
		AND status != ?`,
		userID, day.String(), string(model.TaskStatusCompleted))
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCompletion(ctx context.Context, db execer, completion model.Completion) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO completions (`+completionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)`,
		completion.ID, completion.EntityID, completion.Day.String(),
		completion.Count, completion.Notes, mustTime(completion.CompletedAt),
	)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: entity %s day %s", ErrDuplicateCompletion, completion.EntityID, completion.Day)
	}
	return err
}

func insertHistory(ctx context.Context, db execer, entry model.HistoryEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO task_history (id, task_id, action, details, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.TaskID, string(entry.Action), entry.Details, mustTime(entry.Timestamp),
	)
	return err
}

func updateTask(ctx context.Context, db execer, task model.Task) error {
	args := taskArgs(task)[1:]
	args = append(args, task.ID)
	res, err := db.ExecContext(ctx, `
		UPDATE tasks
		SET user_id = ?, description = ?, status = ?, energy_points = ?, project_id = ?,
			is_recurring = ?, frequency_kind = ?, weekdays = ?, interval_days = ?,
			streak = ?, best_streak = ?, next_due = ?,
			planned_for_today = ?, planned_date = ?, due_date = ?, missed_days = ?,
			postpone_count = ?, postpone_reason = ?, postponed_at = ?, reschedule_date = ?,
			completed_at = ?, created_at = ?, updated_at = ?, is_deleted = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func habitArgs(habit model.Habit) []any {
	return []any{
		habit.ID, habit.UserID, habit.Name, habit.Description, habit.Icon, habit.Color,
		habit.TargetCount, string(habit.Frequency.Kind), encodeWeekdays(habit.Frequency.Weekdays),
		habit.Frequency.IntervalDays, habit.Streak, habit.BestStreak, nullDay(habit.NextDue),
		boolInt(habit.IsActive), mustTime(habit.CreatedAt), mustTime(habit.UpdatedAt),
	}
}

func taskArgs(task model.Task) []any {
	return []any{
		task.ID, task.UserID, task.Description, string(task.Status), task.EnergyPoints, task.ProjectID,
		boolInt(task.IsRecurring), string(task.Frequency.Kind), encodeWeekdays(task.Frequency.Weekdays),
		task.Frequency.IntervalDays, task.Streak, task.BestStreak, nullDay(task.NextDue),
		boolInt(task.PlannedForToday), nullDay(task.PlannedDate), nullDay(task.DueDate), task.MissedDays,
		task.PostponeCount, task.PostponeReason, nullTime(task.PostponedAt), nullDay(task.RescheduleDate),
		nullTime(task.CompletedAt), mustTime(task.CreatedAt), mustTime(task.UpdatedAt), boolInt(task.IsDeleted),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHabit(s scanner) (model.Habit, error) {
	var out model.Habit
	var kind, weekdays string
	var nextDue sql.NullString
	var active int
	var created, updated string
	if err := s.Scan(
		&out.ID, &out.UserID, &out.Name, &out.Description, &out.Icon, &out.Color,
		&out.TargetCount, &kind, &weekdays, &out.Frequency.IntervalDays,
		&out.Streak, &out.BestStreak, &nextDue, &active, &created, &updated,
	); err != nil {
		return model.Habit{}, err
	}

	freq, err := decodeFrequency(kind, weekdays, out.Frequency.IntervalDays)
	if err != nil {
		return model.Habit{}, err
	}
	out.Frequency = freq
	out.IsActive = active == 1

	if out.NextDue, err = parseNullableDay(nextDue); err != nil {
		return model.Habit{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.Habit{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.Habit{}, err
	}
	return out, nil
}

func scanTask(s scanner) (model.Task, error) {
	var out model.Task
	var status, kind, weekdays string
	var recurring, planned, deleted int
	var nextDue, plannedDate, dueDate, postponedAt, rescheduleDate, completedAt sql.NullString
	var created, updated string
	if err := s.Scan(
		&out.ID, &out.UserID, &out.Description, &status, &out.EnergyPoints, &out.ProjectID,
		&recurring, &kind, &weekdays, &out.Frequency.IntervalDays,
		&out.Streak, &out.BestStreak, &nextDue,
		&planned, &plannedDate, &dueDate, &out.MissedDays,
		&out.PostponeCount, &out.PostponeReason, &postponedAt, &rescheduleDate,
		&completedAt, &created, &updated, &deleted,
	); err != nil {
		return model.Task{}, err
	}

	out.Status = model.TaskStatus(status)
	out.IsRecurring = recurring == 1
	out.PlannedForToday = planned == 1
	out.IsDeleted = deleted == 1

	if out.IsRecurring {
		freq, err := decodeFrequency(kind, weekdays, out.Frequency.IntervalDays)
		if err != nil {
			return model.Task{}, err
		}
		out.Frequency = freq
	} else {
		out.Frequency = model.Frequency{}
	}

	var err error
	if out.NextDue, err = parseNullableDay(nextDue); err != nil {
		return model.Task{}, err
	}
	if out.PlannedDate, err = parseNullableDay(plannedDate); err != nil {
		return model.Task{}, err
	}
	if out.DueDate, err = parseNullableDay(dueDate); err != nil {
		return model.Task{}, err
	}
	if out.RescheduleDate, err = parseNullableDay(rescheduleDate); err != nil {
		return model.Task{}, err
	}
	if out.PostponedAt, err = parseNullableTime(postponedAt); err != nil {
		return model.Task{}, err
	}
	if out.CompletedAt, err = parseNullableTime(completedAt); err != nil {
		return model.Task{}, err
	}
	if out.CreatedAt, err = parseRequiredTime(created); err != nil {
		return model.Task{}, err
	}
	if out.UpdatedAt, err = parseRequiredTime(updated); err != nil {
		return model.Task{}, err
	}
	return out, nil
}

func scanCompletion(s scanner) (model.Completion, error) {
	var out model.Completion
	var day, completed string
	if err := s.Scan(&out.ID, &out.EntityID, &day, &out.Count, &out.Notes, &completed); err != nil {
		return model.Completion{}, err
	}
	parsedDay, err := model.ParseDay(day)
	if err != nil {
		return model.Completion{}, err
	}
	out.Day = parsedDay
	if out.CompletedAt, err = parseRequiredTime(completed); err != nil {
		return model.Completion{}, err
	}
	return out, nil
}

func scanHistory(s scanner) (model.HistoryEntry, error) {
	var out model.HistoryEntry
	var action, timestamp string
	if err := s.Scan(&out.ID, &out.TaskID, &action, &out.Details, &timestamp); err != nil {
		return model.HistoryEntry{}, err
	}
	out.Action = model.HistoryAction(action)
	var err error
	if out.Timestamp, err = parseRequiredTime(timestamp); err != nil {
		return model.HistoryEntry{}, err
	}
	return out, nil
}

func decodeFrequency(kind, weekdays string, intervalDays int) (model.Frequency, error) {
	freq := model.Frequency{Kind: model.FrequencyKind(kind), IntervalDays: intervalDays}
	if weekdays != "" {
		for _, part := range strings.Split(weekdays, ",") {
			n, err := strconv.Atoi(part)
			if err != nil {
				return model.Frequency{}, fmt.Errorf("decode weekdays %q: %w", weekdays, err)
			}
			freq.Weekdays = append(freq.Weekdays, time.Weekday(n))
		}
	}
	return freq, nil
}

func encodeWeekdays(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func nullDay(d model.Day) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func parseNullableDay(v sql.NullString) (model.Day, error) {
	if !v.Valid || v.String == "" {
		return model.Day{}, nil
	}
	return model.ParseDay(v.String)
}

func nullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.UTC().Format(sqliteTimeLayout)
}

func mustTime(v time.Time) string {
	return v.UTC().Format(sqliteTimeLayout)
}

func parseNullableTime(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	tm, err := time.Parse(sqliteTimeLayout, v.String)
	if err != nil {
		return nil, err
	}
	return &tm, nil
}

func parseRequiredTime(v string) (time.Time, error) {
	return time.Parse(sqliteTimeLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	sql := ""
	if limit > 0 {
		sql += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		sql += " OFFSET ?"
		*args = append(*args, offset)
	}
	return sql
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
