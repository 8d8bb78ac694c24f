package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps the chain in process memory. It is the default store;
// the ledger's logical behavior does not depend on durability.
type MemoryStore struct {
	mu     sync.RWMutex
	blocks []*Block
}

// NewMemoryStore returns a store seeded with the genesis block.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blocks: []*Block{GenesisBlock()}}
}

func (s *MemoryStore) Append(_ context.Context, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append(s.blocks, b)
	return nil
}

func (s *MemoryStore) Blocks(_ context.Context) ([]*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Block, len(s.blocks))
	copy(out, s.blocks)
	return out, nil
}

func (s *MemoryStore) BlockByIndex(_ context.Context, index int) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.blocks) {
		return nil, nil
	}
	return s.blocks[index], nil
}

func (s *MemoryStore) Tip(_ context.Context) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return nil, fmt.Errorf("chain store is empty")
	}
	return s.blocks[len(s.blocks)-1], nil
}

func (s *MemoryStore) Length(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks), nil
}

func (s *MemoryStore) Replace(_ context.Context, chain []*Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = make([]*Block, len(chain))
	copy(s.blocks, chain)
	return nil
}
