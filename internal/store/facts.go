package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/axiom-network/axiomd/internal/axiomerr"
	"github.com/axiom-network/axiomd/internal/ledger"
)

// InsertFact persists a new fact and its fact_sources rows. f.Sources must
// already be normalized domains; the caller is expected to have run
// GetOrCreateSource for each beforehand within the same transaction.
func InsertFact(ctx context.Context, tx *sql.Tx, f *ledger.Fact, sourceIDs []int64) error {
	semantics, err := json.Marshal(f.Semantics)
	if err != nil {
		return fmt.Errorf("marshal semantics: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO facts (content, hash, status, score, disputed, disputed_reason, last_checked, semantics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Content, f.HashHex(), string(f.Status), f.Score, boolToInt(f.Disputed),
		nullIfEmpty(f.DisputedReason), f.LastChecked, string(semantics))
	if err != nil {
		return fmt.Errorf("%w: insert fact %s: %v", axiomerr.ErrDuplicateKey, f.HashHex(), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	f.ID = id

	for _, sid := range sourceIDs {
		if err := LinkFactSource(ctx, tx, f.ID, sid); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFactVerdict writes back a fact's mutable lifecycle fields after
// Crucible re-scores it (new source, corroboration, contradiction).
func UpdateFactVerdict(ctx context.Context, tx *sql.Tx, factID int64, status ledger.FactStatus, score int, disputed bool, disputedReason string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE facts SET status = ?, score = ?, disputed = ?, disputed_reason = ?
		WHERE id = ?`,
		string(status), score, boolToInt(disputed), nullIfEmpty(disputedReason), factID)
	if err != nil {
		return fmt.Errorf("update fact %d: %w", factID, err)
	}
	return nil
}

const selectFactColumns = `id, content, hash, status, score, disputed, disputed_reason, last_checked, semantics`

func scanFact(row interface{ Scan(...any) error }) (*ledger.Fact, error) {
	var (
		f              ledger.Fact
		hashHex        string
		status         string
		disputedInt    int
		disputedReason sql.NullString
		semanticsRaw   string
	)
	if err := row.Scan(&f.ID, &f.Content, &hashHex, &status, &f.Score, &disputedInt, &disputedReason, &f.LastChecked, &semanticsRaw); err != nil {
		return nil, err
	}
	raw, err := hexDecodeHash(hashHex)
	if err != nil {
		return nil, err
	}
	f.Hash = raw
	f.Status = ledger.FactStatus(status)
	f.Disputed = disputedInt != 0
	f.DisputedReason = disputedReason.String
	if err := json.Unmarshal([]byte(semanticsRaw), &f.Semantics); err != nil {
		return nil, fmt.Errorf("unmarshal semantics for fact %d: %w", f.ID, err)
	}
	return &f, nil
}

// FactByHash returns the fact with the given hex hash, or
// axiomerr.ErrBlockNotFound-shaped sql.ErrNoRows if absent (callers should
// check errors.Is(err, sql.ErrNoRows) directly; no facts-specific sentinel
// exists because "not found" is an ordinary, expected outcome here).
func FactByHash(ctx context.Context, q querier, hash string) (*ledger.Fact, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectFactColumns+` FROM facts WHERE hash = ?`, hash)
	f, err := scanFact(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan fact %s: %w", hash, err)
	}
	sources, err := SourcesByFact(ctx, q, f.ID)
	if err != nil {
		return nil, err
	}
	f.Sources = sources
	return f, nil
}

// FactsByHashes returns every known fact among hashes, keyed by hash hex.
// Hashes with no matching row are simply absent from the result, matching
// the /facts_by_hash endpoint's "best effort" contract (spec section 7).
func FactsByHashes(ctx context.Context, q querier, hashes []string) (map[string]*ledger.Fact, error) {
	result := make(map[string]*ledger.Fact, len(hashes))
	if len(hashes) == 0 {
		return result, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]any, len(hashes))
	for i, h := range hashes {
		placeholders[i] = "?"
		args[i] = h
	}
	query := fmt.Sprintf(`SELECT %s FROM facts WHERE hash IN (%s)`, selectFactColumns, joinPlaceholders(placeholders))

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("batch fact lookup: %w", err)
	}
	defer rows.Close()

	var facts []*ledger.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, f := range facts {
		sources, err := SourcesByFact(ctx, q, f.ID)
		if err != nil {
			return nil, err
		}
		f.Sources = sources
		result[f.HashHex()] = f
	}
	return result, nil
}

// FactsBySubjectObject finds existing facts sharing subject and object.
// Crucible does not use it: its contradiction candidates come from
// FactsBySubject and its corroboration candidates from AllFacts.
func FactsBySubjectObject(ctx context.Context, q querier, subject, object string) ([]*ledger.Fact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectFactColumns+` FROM facts
		WHERE json_extract(semantics, '$.subject') = ?
		  AND json_extract(semantics, '$.object') = ?`, subject, object)
	if err != nil {
		return nil, fmt.Errorf("query facts by subject/object: %w", err)
	}
	defer rows.Close()

	var facts []*ledger.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		sources, err := SourcesByFact(ctx, q, f.ID)
		if err != nil {
			return nil, err
		}
		f.Sources = sources
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// AllFacts returns every persisted fact, the candidate set Crucible's
// corroboration check scans for a content-prefix match regardless of
// subject/object (spec section 4.2 step 3).
func AllFacts(ctx context.Context, q querier) ([]*ledger.Fact, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+selectFactColumns+` FROM facts`)
	if err != nil {
		return nil, fmt.Errorf("query all facts: %w", err)
	}
	defer rows.Close()

	var facts []*ledger.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		sources, err := SourcesByFact(ctx, q, f.ID)
		if err != nil {
			return nil, err
		}
		f.Sources = sources
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FactsBySubject finds existing non-disputed facts sharing subject, the
// candidate set Crucible checks for a contradicting object (spec section
// 4.2 step 2).
func FactsBySubject(ctx context.Context, q querier, subject string) ([]*ledger.Fact, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectFactColumns+` FROM facts
		WHERE json_extract(semantics, '$.subject') = ? AND disputed = 0`, subject)
	if err != nil {
		return nil, fmt.Errorf("query facts by subject: %w", err)
	}
	defer rows.Close()

	var facts []*ledger.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		sources, err := SourcesByFact(ctx, q, f.ID)
		if err != nil {
			return nil, err
		}
		f.Sources = sources
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FactEntities is a fact id paired with its derived entity set, the shape
// relationship detection needs without loading full fact bodies.
type FactEntities struct {
	FactID   int64
	Entities []string
}

// AllFactEntities returns every fact's id and entity set except excludeID,
// for Crucible's relationship detection pass (spec section 4.2 step 5).
func AllFactEntities(ctx context.Context, q querier, excludeID int64) ([]FactEntities, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, json_extract(semantics, '$.entities') FROM facts WHERE id != ?`, excludeID)
	if err != nil {
		return nil, fmt.Errorf("query all fact entities: %w", err)
	}
	defer rows.Close()

	var out []FactEntities
	for rows.Next() {
		var fe FactEntities
		var raw sql.NullString
		if err := rows.Scan(&fe.FactID, &raw); err != nil {
			return nil, err
		}
		if raw.Valid && raw.String != "" {
			if err := json.Unmarshal([]byte(raw.String), &fe.Entities); err != nil {
				return nil, fmt.Errorf("unmarshal entities for fact %d: %w", fe.FactID, err)
			}
		}
		out = append(out, fe)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += "," + p
	}
	return out
}
