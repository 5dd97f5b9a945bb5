package store

import (
	"context"
	"database/sql"
	"fmt"

	"coretriage/internal/model"
)

// buildIDKey maps the API's nil build id onto the database's '' marker.
func buildIDKey(buildID *string) string {
	if buildID == nil {
		return ""
	}
	return *buildID
}

func buildIDVal(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SymbolByNamePath looks up a symbol by its identity.
// Returns (nil, nil) when no such symbol exists.
func (s *Store) SymbolByNamePath(ctx context.Context, name, normalizedPath string) (*model.Symbol, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, nice_name, normalized_path
		FROM symbols
		WHERE name = ? AND normalized_path = ?
	`, name, normalizedPath)

	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query symbol: %w", err)
	}
	return sym, nil
}

// CreateSymbol inserts a symbol by identity, tolerating a concurrent creator:
// INSERT ... ON CONFLICT DO NOTHING followed by a re-read, so the returned
// row is the canonical one whoever won the race. The second return value
// reports whether this call inserted the row.
func (s *Store) CreateSymbol(ctx context.Context, name, normalizedPath string) (*model.Symbol, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO symbols (name, normalized_path)
		VALUES (?, ?)
		ON CONFLICT(name, normalized_path) DO NOTHING
	`, name, normalizedPath)
	if err != nil {
		return nil, false, fmt.Errorf("insert symbol: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert symbol: %w", err)
	}

	sym, err := s.SymbolByNamePath(ctx, name, normalizedPath)
	if err != nil {
		return nil, false, err
	}
	if sym == nil {
		return nil, false, fmt.Errorf("symbol (%q, %q) missing after insert", name, normalizedPath)
	}
	return sym, affected > 0, nil
}

// SetSymbolNiceName fills in the demangled display name.
func (s *Store) SetSymbolNiceName(ctx context.Context, id int64, niceName string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE symbols SET nice_name = ? WHERE id = ?
	`, niceName, id); err != nil {
		return fmt.Errorf("set symbol nice name: %w", err)
	}
	return nil
}

// LocationByKey looks up a symbol source by its identity tuple.
// Returns (nil, nil) when no such location exists.
func (s *Store) LocationByKey(ctx context.Context, buildID *string, path string, offset int64) (*model.SymbolSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol_id, build_id, path, "offset", hash, source_path, line_number, retrace_fail_count
		FROM symbol_sources
		WHERE build_id = ? AND path = ? AND "offset" = ?
	`, buildIDKey(buildID), path, offset)

	loc, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query symbol source: %w", err)
	}
	return loc, nil
}

// CreateLocation inserts a symbol source by identity with the same
// compare-and-set discipline as CreateSymbol. The symbol and fingerprint
// hash only apply when this call creates the row; a concurrent winner's
// values are kept otherwise.
func (s *Store) CreateLocation(ctx context.Context, buildID *string, path string, offset int64, symbolID *int64, hash *string) (*model.SymbolSource, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO symbol_sources (symbol_id, build_id, path, "offset", hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(build_id, path, "offset") DO NOTHING
	`, symbolID, buildIDKey(buildID), path, offset, hash)
	if err != nil {
		return nil, false, fmt.Errorf("insert symbol source: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert symbol source: %w", err)
	}

	loc, err := s.LocationByKey(ctx, buildID, path, offset)
	if err != nil {
		return nil, false, err
	}
	if loc == nil {
		return nil, false, fmt.Errorf("symbol source (%s, %s, %d) missing after insert", buildIDKey(buildID), path, offset)
	}
	return loc, affected > 0, nil
}

// UpdateLocationResolution writes the retraced symbol, source file, and line
// onto a location.
func (s *Store) UpdateLocationResolution(ctx context.Context, id, symbolID int64, sourcePath string, lineNumber int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE symbol_sources
		SET symbol_id = ?, source_path = ?, line_number = ?
		WHERE id = ?
	`, symbolID, sourcePath, lineNumber, id); err != nil {
		return fmt.Errorf("update symbol source resolution: %w", err)
	}
	return nil
}

// IncrementRetraceFail records one failed resolution attempt. The counter is
// the only record of the failure; retry policy lives outside the core.
func (s *Store) IncrementRetraceFail(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE symbol_sources
		SET retrace_fail_count = retrace_fail_count + 1
		WHERE id = ?
	`, id); err != nil {
		return fmt.Errorf("increment retrace fail count: %w", err)
	}
	return nil
}

// LocationsNeedingRetrace returns every location with a known build id that
// still lacks a symbol, source file, or line number, in deterministic order.
func (s *Store) LocationsNeedingRetrace(ctx context.Context) ([]*model.SymbolSource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol_id, build_id, path, "offset", hash, source_path, line_number, retrace_fail_count
		FROM symbol_sources
		WHERE build_id != ''
		  AND (symbol_id IS NULL OR source_path IS NULL OR line_number IS NULL)
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query locations needing retrace: %w", err)
	}
	defer rows.Close()

	locations := []*model.SymbolSource{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol source: %w", err)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate symbol sources: %w", err)
	}
	return locations, nil
}

// LocationByID reloads one location.
func (s *Store) LocationByID(ctx context.Context, id int64) (*model.SymbolSource, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol_id, build_id, path, "offset", hash, source_path, line_number, retrace_fail_count
		FROM symbol_sources
		WHERE id = ?
	`, id)

	loc, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query symbol source: %w", err)
	}
	return loc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSymbol(r rowScanner) (*model.Symbol, error) {
	var sym model.Symbol
	var nice sql.NullString
	if err := r.Scan(&sym.ID, &sym.Name, &nice, &sym.NormalizedPath); err != nil {
		return nil, err
	}
	if nice.Valid {
		sym.NiceName = &nice.String
	}
	return &sym, nil
}

func scanLocation(r rowScanner) (*model.SymbolSource, error) {
	var loc model.SymbolSource
	var symbolID, lineNumber sql.NullInt64
	var buildID string
	var hash, sourcePath sql.NullString

	if err := r.Scan(&loc.ID, &symbolID, &buildID, &loc.Path, &loc.Offset,
		&hash, &sourcePath, &lineNumber, &loc.RetraceFailCount); err != nil {
		return nil, err
	}

	if symbolID.Valid {
		loc.SymbolID = &symbolID.Int64
	}
	loc.BuildID = buildIDVal(buildID)
	if hash.Valid {
		loc.Hash = &hash.String
	}
	if sourcePath.Valid {
		loc.SourcePath = &sourcePath.String
	}
	if lineNumber.Valid {
		loc.LineNumber = &lineNumber.Int64
	}
	return &loc, nil
}
