package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a ledger Service.
type Options struct {
	// NodeID identifies this node; mining rewards are paid to it.
	NodeID string
	// Difficulty is the number of trailing zero characters required of a
	// proof digest. Zero or negative falls back to DefaultDifficulty.
	Difficulty int
	// Reward is the amount of the mining reward transaction.
	Reward float64
	Logger zerolog.Logger
}

// Service owns the chain and the mempool. The two form one shared resource:
// a single lock guards every operation that observes and mutates both, so a
// transaction is never both drained into a block and still visible as
// pending. The proof-of-work search itself runs outside the lock.
type Service struct {
	mu    sync.RWMutex
	store ChainStore
	pool  *Mempool

	nodeID     string
	difficulty int
	reward     float64
	logger     zerolog.Logger

	now func() float64
}

func NewService(store ChainStore, pool *Mempool, opts Options) *Service {
	if opts.Difficulty <= 0 {
		opts.Difficulty = DefaultDifficulty
	}
	if opts.NodeID == "" {
		opts.NodeID = newNodeID()
	}
	return &Service{
		store:      store,
		pool:       pool,
		nodeID:     opts.NodeID,
		difficulty: opts.Difficulty,
		reward:     opts.Reward,
		logger:     opts.Logger,
		now:        func() float64 { return float64(time.Now().UnixNano()) / float64(time.Second) },
	}
}

func newNodeID() string {
	id := uuid.NewString()
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		if id[i] != '-' {
			out = append(out, id[i])
		}
	}
	return string(out)
}

func (s *Service) NodeID() string  { return s.nodeID }
func (s *Service) Difficulty() int { return s.difficulty }
func (s *Service) Pool() *Mempool  { return s.pool }

// Chain returns the full block sequence.
func (s *Service) Chain(ctx context.Context) ([]*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Blocks(ctx)
}

// Length returns the number of blocks in the chain.
func (s *Service) Length(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.Length(ctx)
}

// Block returns the block at the given index, or nil past the tip.
func (s *Service) Block(ctx context.Context, index int) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store.BlockByIndex(ctx, index)
}

// Submit validates a transaction and adds it to the mempool.
func (s *Service) Submit(ctx context.Context, tx Transaction) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if tx.Timestamp == 0 {
		tx.Timestamp = s.now()
	}
	id, err := s.pool.Submit(tx)
	if err != nil {
		return "", err
	}
	s.logger.Info().
		Str("tx", id).
		Str("sender", tx.Sender).
		Str("recipient", tx.Recipient).
		Msg("transaction accepted")
	return id, nil
}

// Mine drains the mempool into a new block admitted by proof of work.
//
// The proof search runs against the tip observed at entry and holds no lock,
// so submissions and chain reads proceed during the search. The final
// drain-and-append runs as one critical section; if the tip moved while
// searching, Mine fails with ErrStaleTip without touching the pool.
func (s *Service) Mine(ctx context.Context) (*Block, error) {
	s.mu.RLock()
	tip, err := s.store.Tip(ctx)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	tipHash := tip.Hash()

	started := time.Now()
	proof := ProofOfWork(tip.Proof, s.difficulty)

	reward := Transaction{
		ID:        uuid.NewString(),
		Sender:    MiningSender,
		Recipient: s.nodeID,
		Amount:    s.reward,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.store.Tip(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain tip: %w", err)
	}
	if cur.Index != tip.Index || cur.Hash() != tipHash {
		return nil, ErrStaleTip
	}

	length, err := s.store.Length(ctx)
	if err != nil {
		return nil, err
	}

	drained := s.pool.DrainAll()

	ts := s.now()
	if ts < cur.Timestamp {
		ts = cur.Timestamp
	}
	block := &Block{
		Index:        cur.Index + 1,
		Timestamp:    ts,
		Transactions: append(drained, reward),
		Proof:        proof,
		PreviousHash: tipHash,
	}

	if block.Index != length {
		s.pool.Requeue(drained)
		return nil, fmt.Errorf("%w: index %d, chain length %d", ErrChainAppend, block.Index, length)
	}
	if err := s.store.Append(ctx, block); err != nil {
		s.pool.Requeue(drained)
		return nil, fmt.Errorf("append block %d: %w", block.Index, err)
	}

	s.logger.Info().
		Int("block", block.Index).
		Uint64("proof", proof).
		Int("transactions", len(block.Transactions)).
		Dur("search", time.Since(started)).
		Msg("new block forged")
	return block, nil
}

// Validate reports whether a candidate chain satisfies the hash-link and
// proof rules at this node's difficulty.
func (s *Service) Validate(chain []*Block) bool {
	return ValidateChain(chain, s.difficulty)
}

// Replace swaps the local chain for the given one and drops pending
// transactions it already includes. The chain is validated again under the
// write lock before the swap. All-or-nothing.
func (s *Service) Replace(ctx context.Context, chain []*Block) error {
	if !ValidateChain(chain, s.difficulty) {
		return fmt.Errorf("%w: replacement chain is invalid", ErrChainAppend)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Replace(ctx, chain); err != nil {
		return fmt.Errorf("replace chain: %w", err)
	}

	included := make(map[string]struct{})
	for _, b := range chain {
		for _, tx := range b.Transactions {
			included[tx.ID] = struct{}{}
		}
	}
	s.pool.RemoveByID(included)

	s.logger.Info().Int("length", len(chain)).Msg("chain replaced")
	return nil
}
