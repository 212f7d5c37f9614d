package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/axiom-network/axiomd/internal/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting the same query
// helpers serve reads (View) and writes (WithTx).
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetOrCreateSource returns the Source row for domain, inserting it if
// absent. domain must already be normalized (ledger.NormalizeDomain).
func GetOrCreateSource(ctx context.Context, q querier, domain string) (ledger.Source, error) {
	var src ledger.Source
	err := q.QueryRowContext(ctx, `SELECT id, domain FROM sources WHERE domain = ?`, domain).
		Scan(&src.ID, &src.Domain)
	switch {
	case err == nil:
		return src, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return ledger.Source{}, fmt.Errorf("lookup source %q: %w", domain, err)
	}

	res, err := q.ExecContext(ctx, `INSERT INTO sources (domain) VALUES (?)`, domain)
	if err != nil {
		return ledger.Source{}, fmt.Errorf("insert source %q: %w", domain, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Source{}, fmt.Errorf("insert source %q: %w", domain, err)
	}
	return ledger.Source{ID: id, Domain: domain}, nil
}

// SourcesByFact returns the source domains recorded for factID, in no
// particular order.
func SourcesByFact(ctx context.Context, q querier, factID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT s.domain
		FROM sources s
		JOIN fact_sources fs ON fs.source_id = s.id
		WHERE fs.fact_id = ?`, factID)
	if err != nil {
		return nil, fmt.Errorf("query sources for fact %d: %w", factID, err)
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// LinkFactSource records that factID was published by sourceID, ignoring
// the call if the pair is already linked.
func LinkFactSource(ctx context.Context, q querier, factID, sourceID int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO fact_sources (fact_id, source_id) VALUES (?, ?)`,
		factID, sourceID)
	if err != nil {
		return fmt.Errorf("link fact %d to source %d: %w", factID, sourceID, err)
	}
	return nil
}
