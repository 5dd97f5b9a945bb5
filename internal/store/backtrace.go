package store

import (
	"context"
	"database/sql"
	"fmt"

	"coretriage/internal/model"
)

// EnsureReport creates or updates the minimal report row the triage core
// needs. Ownership of the report lifecycle is external; this only guarantees
// the foreign-key target exists and the error name is current.
func (s *Store) EnsureReport(ctx context.Context, reportID int64, errName string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, errname) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET errname = excluded.errname
	`, reportID, errName); err != nil {
		return fmt.Errorf("ensure report: %w", err)
	}
	return nil
}

// UpsertExecutable adds count occurrences of an executable path to a report.
func (s *Store) UpsertExecutable(ctx context.Context, reportID int64, path string, count int64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO report_executables (report_id, path, count) VALUES (?, ?, ?)
		ON CONFLICT(report_id, path) DO UPDATE SET count = count + excluded.count
	`, reportID, path, count); err != nil {
		return fmt.Errorf("upsert report executable: %w", err)
	}
	return nil
}

// ExecutableCount reads the stored occurrence count for a report executable.
func (s *Store) ExecutableCount(ctx context.Context, reportID int64, path string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM report_executables WHERE report_id = ? AND path = ?
	`, reportID, path).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query report executable: %w", err)
	}
	return count, nil
}

// HasBacktrace reports whether the report already has a stored backtrace.
func (s *Store) HasBacktrace(ctx context.Context, reportID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM report_backtraces WHERE report_id = ? LIMIT 1
	`, reportID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query backtrace existence: %w", err)
	}
	return true, nil
}

// CreateBacktrace adds a backtrace to a report.
func (s *Store) CreateBacktrace(ctx context.Context, reportID int64) (*model.Backtrace, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_backtraces (report_id) VALUES (?)
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("insert backtrace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert backtrace: %w", err)
	}
	return &model.Backtrace{ID: id, ReportID: reportID}, nil
}

// Backtraces returns a report's backtraces in creation order.
// Returns an empty slice (not nil) when the report has none.
func (s *Store) Backtraces(ctx context.Context, reportID int64) ([]*model.Backtrace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id FROM report_backtraces
		WHERE report_id = ?
		ORDER BY id ASC
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("query backtraces: %w", err)
	}
	defer rows.Close()

	backtraces := []*model.Backtrace{}
	for rows.Next() {
		var bt model.Backtrace
		if err := rows.Scan(&bt.ID, &bt.ReportID); err != nil {
			return nil, fmt.Errorf("scan backtrace: %w", err)
		}
		backtraces = append(backtraces, &bt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtraces: %w", err)
	}
	return backtraces, nil
}

// AddBacktraceHash stores one tagged fingerprint. Duplicate (backtrace, type)
// pairs are silently ignored for idempotency.
func (s *Store) AddBacktraceHash(ctx context.Context, backtraceID int64, hashType, hash string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO report_bt_hashes (backtrace_id, type, hash) VALUES (?, ?, ?)
		ON CONFLICT(backtrace_id, type) DO NOTHING
	`, backtraceID, hashType, hash); err != nil {
		return fmt.Errorf("insert backtrace hash: %w", err)
	}
	return nil
}

// BacktraceHashes returns the stored fingerprints of a backtrace.
func (s *Store) BacktraceHashes(ctx context.Context, backtraceID int64) ([]model.BtHash, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT backtrace_id, type, hash FROM report_bt_hashes
		WHERE backtrace_id = ?
		ORDER BY type ASC
	`, backtraceID)
	if err != nil {
		return nil, fmt.Errorf("query backtrace hashes: %w", err)
	}
	defer rows.Close()

	hashes := []model.BtHash{}
	for rows.Next() {
		var h model.BtHash
		if err := rows.Scan(&h.BacktraceID, &h.Type, &h.Hash); err != nil {
			return nil, fmt.Errorf("scan backtrace hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backtrace hashes: %w", err)
	}
	return hashes, nil
}

// CreateThread adds a numbered thread to a backtrace.
func (s *Store) CreateThread(ctx context.Context, backtraceID, number int64, crashThread bool) (*model.Thread, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_bt_threads (backtrace_id, number, crashthread)
		VALUES (?, ?, ?)
	`, backtraceID, number, crashThread)
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return &model.Thread{ID: id, BacktraceID: backtraceID, Number: number, CrashThread: crashThread}, nil
}

// Threads returns a backtrace's threads ordered by number.
func (s *Store) Threads(ctx context.Context, backtraceID int64) ([]*model.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, backtrace_id, number, crashthread FROM report_bt_threads
		WHERE backtrace_id = ?
		ORDER BY number ASC
	`, backtraceID)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	threads := []*model.Thread{}
	for rows.Next() {
		var t model.Thread
		if err := rows.Scan(&t.ID, &t.BacktraceID, &t.Number, &t.CrashThread); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return threads, nil
}

// CreateFrame adds a frame to a thread at an explicit order value.
func (s *Store) CreateFrame(ctx context.Context, threadID, symbolSourceID, order int64, inlined bool) (*model.Frame, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_bt_frames (thread_id, symbolsource_id, ord, inlined)
		VALUES (?, ?, ?, ?)
	`, threadID, symbolSourceID, order, inlined)
	if err != nil {
		return nil, fmt.Errorf("insert frame: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("insert frame: %w", err)
	}
	return &model.Frame{
		ID:             id,
		ThreadID:       threadID,
		SymbolSourceID: symbolSourceID,
		Order:          order,
		Inlined:        inlined,
	}, nil
}

// ThreadFrames returns a thread's frames with deterministic ordering:
// ORDER BY ord ASC, id ASC.
func (s *Store) ThreadFrames(ctx context.Context, threadID int64) ([]*model.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, symbolsource_id, ord, inlined FROM report_bt_frames
		WHERE thread_id = ?
		ORDER BY ord ASC, id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	return scanFrames(rows)
}

// FramesByLocation returns every frame referencing a symbol source, across
// all threads and backtraces. Used by inline expansion.
func (s *Store) FramesByLocation(ctx context.Context, symbolSourceID int64) ([]*model.Frame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, thread_id, symbolsource_id, ord, inlined FROM report_bt_frames
		WHERE symbolsource_id = ?
		ORDER BY id ASC
	`, symbolSourceID)
	if err != nil {
		return nil, fmt.Errorf("query frames by location: %w", err)
	}
	defer rows.Close()

	return scanFrames(rows)
}

func scanFrames(rows *sql.Rows) ([]*model.Frame, error) {
	frames := []*model.Frame{}
	for rows.Next() {
		var f model.Frame
		if err := rows.Scan(&f.ID, &f.ThreadID, &f.SymbolSourceID, &f.Order, &f.Inlined); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, nil
}

// StackRow is one frame of a thread joined with its location and symbol,
// as needed to build a canonical comparison stack.
type StackRow struct {
	FrameID        int64
	Order          int64
	Inlined        bool
	Path           string
	Offset         int64
	FunctionName   *string
	NormalizedPath *string
	SourcePath     *string
	LineNumber     *int64
}

// ThreadStack returns a thread's frames joined with symbol sources and
// symbols, ordered like ThreadFrames.
func (s *Store) ThreadStack(ctx context.Context, threadID int64) ([]StackRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.ord, f.inlined, ss.path, ss."offset",
		       sym.name, sym.normalized_path, ss.source_path, ss.line_number
		FROM report_bt_frames f
		JOIN symbol_sources ss ON ss.id = f.symbolsource_id
		LEFT JOIN symbols sym ON sym.id = ss.symbol_id
		WHERE f.thread_id = ?
		ORDER BY f.ord ASC, f.id ASC
	`, threadID)
	if err != nil {
		return nil, fmt.Errorf("query thread stack: %w", err)
	}
	defer rows.Close()

	stack := []StackRow{}
	for rows.Next() {
		var r StackRow
		var name, normPath, sourcePath sql.NullString
		var line sql.NullInt64
		if err := rows.Scan(&r.FrameID, &r.Order, &r.Inlined, &r.Path, &r.Offset,
			&name, &normPath, &sourcePath, &line); err != nil {
			return nil, fmt.Errorf("scan thread stack row: %w", err)
		}
		if name.Valid {
			r.FunctionName = &name.String
		}
		if normPath.Valid {
			r.NormalizedPath = &normPath.String
		}
		if sourcePath.Valid {
			r.SourcePath = &sourcePath.String
		}
		if line.Valid {
			r.LineNumber = &line.Int64
		}
		stack = append(stack, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread stack: %w", err)
	}
	return stack, nil
}
