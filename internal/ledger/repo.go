package ledger

import "context"

// ChainStore is the pluggable home of the block sequence. Implementations
// only provide storage; validation, locking, and the append/replace rules
// live in the Service. The store must preserve insertion order.
type ChainStore interface {
	// Append adds a block after the current tip.
	Append(ctx context.Context, b *Block) error
	// Blocks returns the full chain in index order.
	Blocks(ctx context.Context) ([]*Block, error)
	// BlockByIndex returns the block at the given index, or nil if the
	// index is past the tip.
	BlockByIndex(ctx context.Context, index int) (*Block, error)
	// Tip returns the last block.
	Tip(ctx context.Context) (*Block, error)
	// Length returns the number of blocks.
	Length(ctx context.Context) (int, error)
	// Replace swaps the entire chain for a new one.
	Replace(ctx context.Context, chain []*Block) error
}
