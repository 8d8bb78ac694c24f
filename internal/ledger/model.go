package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// MiningSender is the sentinel sender identifier used for mining reward
// transactions. Reward transactions carry no signature.
const MiningSender = "THE BLOCKCHAIN"

// GenesisPreviousHash is the fixed previous_hash sentinel of the genesis block.
const GenesisPreviousHash = "00"

// GenesisProof is the seed proof of the genesis block.
const GenesisProof uint64 = 100

var (
	// ErrValidation marks a malformed transaction or request; it never
	// reaches the mempool.
	ErrValidation = errors.New("validation failed")

	// ErrChainAppend marks an index or previous-hash mismatch on append.
	ErrChainAppend = errors.New("chain append rejected")

	// ErrStaleTip is returned when the chain tip moved between the proof
	// search and the commit; drained transactions are requeued.
	ErrStaleTip = errors.New("chain tip changed during mining")
)

// RecordMeta carries the clear-text routing fields of a medical record
// transaction. The record body itself travels encrypted in the transaction
// payload; these fields stay readable so access checks and chain queries do
// not need the encryption key.
type RecordMeta struct {
	PatientID  string   `json:"patient_id"`
	ProviderID string   `json:"provider_id"`
	RecordType string   `json:"record_type"`
	AccessList []string `json:"access_list"`
}

// Transaction is a single ledger entry. Once a transaction is included in a
// block it is never mutated; chain replacement during consensus is the only
// way an included transaction disappears.
type Transaction struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Recipient string      `json:"recipient"`
	Amount    float64     `json:"amount"`
	Payload   string      `json:"payload,omitempty"` // base64 AES-GCM ciphertext
	Signature string      `json:"signature,omitempty"`
	Timestamp float64     `json:"timestamp"`
	Record    *RecordMeta `json:"record,omitempty"`
}

// Validate checks the fields a transaction must carry before it may enter
// the mempool. Signatures are opaque and not verified here.
func (t *Transaction) Validate() error {
	if t.Sender == "" {
		return fmt.Errorf("%w: sender is required", ErrValidation)
	}
	if t.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("%w: amount must be a finite number", ErrValidation)
	}
	if t.Amount < 0 {
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	return nil
}

// Block is one link of the chain. Field declaration order is the canonical
// serialization order; Hash depends on it being stable across nodes.
type Block struct {
	Index        int           `json:"index"`
	Timestamp    float64       `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	Proof        uint64        `json:"proof"`
	PreviousHash string        `json:"previous_hash"`
}

// Hash returns the hex-encoded SHA-256 digest of the block's canonical JSON
// serialization. Identical blocks hash identically on every node; consensus
// depends on this.
func (b *Block) Hash() string {
	raw, err := json.Marshal(b)
	if err != nil {
		// Block contains only marshalable fields; this cannot happen for a
		// well-formed block.
		panic(fmt.Sprintf("ledger: marshal block %d: %v", b.Index, err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// GenesisBlock returns the fixed first block of every chain. It is created
// exactly once at ledger initialization and never mutated or replaced.
func GenesisBlock() *Block {
	return &Block{
		Index:        0,
		Timestamp:    0,
		Transactions: []Transaction{},
		Proof:        GenesisProof,
		PreviousHash: GenesisPreviousHash,
	}
}

// ValidateChain reports whether the given chain is internally consistent:
// every block links to the hash of its predecessor, indexes are contiguous,
// and every consecutive proof pair satisfies the proof-of-work predicate.
// The genesis block is implicitly valid.
func ValidateChain(chain []*Block, difficulty int) bool {
	if len(chain) == 0 {
		return false
	}
	if chain[0].Index != 0 {
		return false
	}
	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		if cur.Index != i {
			return false
		}
		if cur.PreviousHash != prev.Hash() {
			return false
		}
		if !ValidProof(prev.Proof, cur.Proof, difficulty) {
			return false
		}
	}
	return true
}
