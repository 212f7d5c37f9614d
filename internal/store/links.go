package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/axiom-network/axiomd/internal/ledger"
)

// InsertFactLink persists a FactLink, ignoring the call if this endpoint
// pair is already linked (the UNIQUE(fact1_id, fact2_id) constraint plus
// canonical ordering in ledger.NewFactLink makes a duplicate link a no-op
// rather than an error).
func InsertFactLink(ctx context.Context, tx *sql.Tx, link *ledger.FactLink) error {
	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO fact_links (fact1_id, fact2_id, score) VALUES (?, ?, ?)`,
		link.Fact1ID, link.Fact2ID, link.Score)
	if err != nil {
		return fmt.Errorf("insert fact link (%d,%d): %w", link.Fact1ID, link.Fact2ID, err)
	}
	if id, err := res.LastInsertId(); err == nil && id != 0 {
		link.ID = id
	}
	return nil
}

// FactLinksForFact returns every link touching factID, in either endpoint
// position.
func FactLinksForFact(ctx context.Context, q querier, factID int64) ([]*ledger.FactLink, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, fact1_id, fact2_id, score FROM fact_links
		WHERE fact1_id = ? OR fact2_id = ?`, factID, factID)
	if err != nil {
		return nil, fmt.Errorf("query fact links for %d: %w", factID, err)
	}
	defer rows.Close()

	var links []*ledger.FactLink
	for rows.Next() {
		l := &ledger.FactLink{}
		if err := rows.Scan(&l.ID, &l.Fact1ID, &l.Fact2ID, &l.Score); err != nil {
			return nil, err
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

// HasContradiction reports whether factID has any recorded contradiction
// link (score == ledger.ContradictionScore).
func HasContradiction(ctx context.Context, q querier, factID int64) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM fact_links
		WHERE (fact1_id = ? OR fact2_id = ?) AND score = ?`,
		factID, factID, ledger.ContradictionScore).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check contradiction for fact %d: %w", factID, err)
	}
	return count > 0, nil
}
