package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fentz26/ntbk/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath and runs migrations.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		intent TEXT NOT NULL,
		topic TEXT,
		prompt_context TEXT NOT NULL,
		agent_config TEXT NOT NULL,
		tool_endpoints TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		source TEXT,
		agent_reply TEXT,
		next_step TEXT,
		logs TEXT,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_audit_task_id ON audit(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

const taskColumns = `id, intent, topic, prompt_context, agent_config, tool_endpoints, status, source,
	agent_reply, next_step, logs, error, attempts, created_at, updated_at`

// CreateTask inserts a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *models.Task) error {
	row, err := encodeTask(task)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Intent, task.Topic, task.PromptContext, row.agentConfig, row.toolEndpoints,
		task.Status, task.Source, row.agentReply, row.nextStep, row.logs, row.errText,
		task.Attempts, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// UpdateTask overwrites the mutable fields of a task.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *models.Task) error {
	row, err := encodeTask(task)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, source = ?, agent_reply = ?, next_step = ?, logs = ?, error = ?,
		 attempts = ?, tool_endpoints = ?, updated_at = ? WHERE id = ?`,
		task.Status, task.Source, row.agentReply, row.nextStep, row.logs, row.errText,
		task.Attempts, row.toolEndpoints, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTasks returns all tasks, oldest first.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// --- Audit Operations ---

// WriteAudit inserts an audit entry.
func (s *SQLiteStore) WriteAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.InputsHash, e.Outcome, e.TaskID, e.Details, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudit returns audit entries, optionally for one task.
func (s *SQLiteStore) ListAudit(ctx context.Context, taskID string) ([]models.AuditEntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM audit`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var tid, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &tid, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		e.TaskID = tid.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Encoding helpers ---

type taskRow struct {
	agentConfig   string
	toolEndpoints sql.NullString
	agentReply    sql.NullString
	nextStep      sql.NullString
	logs          sql.NullString
	errText       sql.NullString
}

func encodeTask(task *models.Task) (*taskRow, error) {
	cfg, err := json.Marshal(task.AgentConfig)
	if err != nil {
		return nil, fmt.Errorf("encode agent config: %w", err)
	}
	row := &taskRow{agentConfig: string(cfg)}

	if task.ToolEndpoints != nil {
		b, err := json.Marshal(task.ToolEndpoints)
		if err != nil {
			return nil, fmt.Errorf("encode tool endpoints: %w", err)
		}
		row.toolEndpoints = sql.NullString{String: string(b), Valid: true}
	}

	// A NULL agent_reply marks "no result yet".
	if r := task.Result; r != nil {
		row.agentReply = sql.NullString{String: r.AgentReply, Valid: true}
		row.logs = sql.NullString{String: r.Logs, Valid: true}
		row.errText = sql.NullString{String: r.Error, Valid: true}
		if r.NextStep != nil {
			b, err := json.Marshal(r.NextStep)
			if err != nil {
				return nil, fmt.Errorf("encode next step: %w", err)
			}
			row.nextStep = sql.NullString{String: string(b), Valid: true}
		}
	}
	return row, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (*models.Task, error) {
	var (
		task   models.Task
		row    taskRow
		topic  sql.NullString
		source sql.NullString
	)
	err := sc.Scan(&task.ID, &task.Intent, &topic, &task.PromptContext, &row.agentConfig, &row.toolEndpoints,
		&task.Status, &source, &row.agentReply, &row.nextStep, &row.logs, &row.errText,
		&task.Attempts, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}

	task.Topic = topic.String
	task.Source = models.Source(source.String)
	if err := json.Unmarshal([]byte(row.agentConfig), &task.AgentConfig); err != nil {
		return nil, fmt.Errorf("decode agent config: %w", err)
	}
	if row.toolEndpoints.Valid {
		if err := json.Unmarshal([]byte(row.toolEndpoints.String), &task.ToolEndpoints); err != nil {
			return nil, fmt.Errorf("decode tool endpoints: %w", err)
		}
	}
	if row.agentReply.Valid {
		task.Result = &models.Result{
			AgentReply: row.agentReply.String,
			Logs:       row.logs.String,
			Error:      row.errText.String,
		}
		if row.nextStep.Valid {
			if err := json.Unmarshal([]byte(row.nextStep.String), &task.Result.NextStep); err != nil {
				return nil, fmt.Errorf("decode next step: %w", err)
			}
		}
	}
	return &task, nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint")
}
