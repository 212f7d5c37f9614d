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

// InsertBlock appends b to the chain. Callers are expected to have already
// run blockengine.ValidateContinuity and blockengine.ValidateSeal; this
// layer only enforces the storage-level uniqueness of height and hash.
func InsertBlock(ctx context.Context, tx *sql.Tx, b *ledger.Block) error {
	factHashesJSON, err := json.Marshal(b.FactHashes)
	if err != nil {
		return fmt.Errorf("marshal fact hashes for block %d: %w", b.Height, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO blocks (height, previous_hash, fact_hashes, merkle_root, timestamp, nonce, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.Height, b.PreviousHash, string(factHashesJSON), b.MerkleRootHex, b.Timestamp, b.Nonce, b.Hash)
	if err != nil {
		return fmt.Errorf("%w: insert block %d: %v", axiomerr.ErrDuplicateBlockHash, b.Height, err)
	}
	return nil
}

const selectBlockColumns = `height, previous_hash, fact_hashes, merkle_root, timestamp, nonce, hash`

func scanBlock(row interface{ Scan(...any) error }) (*ledger.Block, error) {
	var (
		b              ledger.Block
		factHashesJSON string
	)
	if err := row.Scan(&b.Height, &b.PreviousHash, &factHashesJSON, &b.MerkleRootHex, &b.Timestamp, &b.Nonce, &b.Hash); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(factHashesJSON), &b.FactHashes); err != nil {
		return nil, fmt.Errorf("unmarshal fact hashes for block %d: %w", b.Height, err)
	}
	return &b, nil
}

// LatestBlock returns the chain tip, or axiomerr.ErrBlockNotFound if the
// chain is empty (the node has not yet sealed or received its genesis
// block).
func LatestBlock(ctx context.Context, q querier) (*ledger.Block, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectBlockColumns+` FROM blocks ORDER BY height DESC LIMIT 1`)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, axiomerr.ErrBlockNotFound
		}
		return nil, fmt.Errorf("query latest block: %w", err)
	}
	return b, nil
}

// BlockByHeight returns the block at height, or axiomerr.ErrBlockNotFound.
func BlockByHeight(ctx context.Context, q querier, height int64) (*ledger.Block, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectBlockColumns+` FROM blocks WHERE height = ?`, height)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, axiomerr.ErrBlockNotFound
		}
		return nil, fmt.Errorf("query block %d: %w", height, err)
	}
	return b, nil
}

// BlocksSince returns every block with height > since, ascending, for the
// /blocks?since=H verification endpoint and sync's catch-up fetch.
func BlocksSince(ctx context.Context, q querier, since int64) ([]*ledger.Block, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+selectBlockColumns+` FROM blocks WHERE height > ? ORDER BY height ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("query blocks since %d: %w", since, err)
	}
	defer rows.Close()

	var blocks []*ledger.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

// ChainHeight returns the current tip height, or -1 if the chain is empty.
func ChainHeight(ctx context.Context, q querier) (int64, error) {
	latest, err := LatestBlock(ctx, q)
	if err != nil {
		if errors.Is(err, axiomerr.ErrBlockNotFound) {
			return -1, nil
		}
		return 0, err
	}
	return latest.Height, nil
}

// EntityCount is one row of the zeitgeist endpoint's trending-entity
// report (spec section 9 supplemental feature).
type EntityCount struct {
	Entity string
	Count  int
}

// TopEntities ranks named entities by how many accepted facts mention
// them, across facts sealed since sinceHeight, limited to limit rows.
func TopEntities(ctx context.Context, q querier, sinceHeight int64, limit int) ([]EntityCount, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT je.value AS entity, COUNT(*) AS n
		FROM facts f, json_each(json_extract(f.semantics, '$.entities')) je
		WHERE f.hash IN (
			SELECT je2.value
			FROM blocks b, json_each(b.fact_hashes) je2
			WHERE b.height > ?
		)
		GROUP BY je.value
		ORDER BY n DESC, entity ASC
		LIMIT ?`, sinceHeight, limit)
	if err != nil {
		return nil, fmt.Errorf("query top entities: %w", err)
	}
	defer rows.Close()

	var out []EntityCount
	for rows.Next() {
		var ec EntityCount
		if err := rows.Scan(&ec.Entity, &ec.Count); err != nil {
			return nil, err
		}
		out = append(out, ec)
	}
	return out, rows.Err()
}
