package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgStore persists blocks in Postgres as canonical JSON, one row per block.
// The row key is the block index, so insertion order and index order agree.
type pgStore struct{ pool *pgxpool.Pool }

// NewPGStore returns a Postgres-backed ChainStore, creating the blocks table
// and seeding the genesis block if the table is empty.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (ChainStore, error) {
	s := &pgStore{pool: pool}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS ledger_blocks (
			block_index INT PRIMARY KEY,
			body        JSONB NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("create ledger_blocks: %w", err)
	}

	n, err := s.Length(ctx)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if err := s.Append(ctx, GenesisBlock()); err != nil {
			return nil, fmt.Errorf("seed genesis block: %w", err)
		}
	}
	return s, nil
}

func (s *pgStore) Append(ctx context.Context, b *Block) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal block %d: %w", b.Index, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO ledger_blocks (block_index, body) VALUES ($1, $2)`,
		b.Index, body)
	if err != nil {
		return fmt.Errorf("insert block %d: %w", b.Index, err)
	}
	return nil
}

func (s *pgStore) Blocks(ctx context.Context) ([]*Block, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT body FROM ledger_blocks ORDER BY block_index`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	defer rows.Close()

	var chain []*Block
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var b Block
		if err := json.Unmarshal(body, &b); err != nil {
			return nil, fmt.Errorf("unmarshal block: %w", err)
		}
		chain = append(chain, &b)
	}
	return chain, rows.Err()
}

func (s *pgStore) BlockByIndex(ctx context.Context, index int) (*Block, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM ledger_blocks WHERE block_index = $1`, index).Scan(&body)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query block %d: %w", index, err)
	}
	var b Block
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("unmarshal block %d: %w", index, err)
	}
	return &b, nil
}

func (s *pgStore) Tip(ctx context.Context) (*Block, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM ledger_blocks ORDER BY block_index DESC LIMIT 1`).Scan(&body)
	if err != nil {
		return nil, fmt.Errorf("query tip: %w", err)
	}
	var b Block
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("unmarshal tip: %w", err)
	}
	return &b, nil
}

func (s *pgStore) Length(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ledger_blocks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return n, nil
}

func (s *pgStore) Replace(ctx context.Context, chain []*Block) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM ledger_blocks`); err != nil {
		return fmt.Errorf("clear blocks: %w", err)
	}
	for _, b := range chain {
		body, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal block %d: %w", b.Index, err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO ledger_blocks (block_index, body) VALUES ($1, $2)`,
			b.Index, body); err != nil {
			return fmt.Errorf("insert block %d: %w", b.Index, err)
		}
	}
	return tx.Commit(ctx)
}
