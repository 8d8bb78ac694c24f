package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// DefaultDifficulty is the number of trailing zero characters a proof digest
// must show when no difficulty is configured.
const DefaultDifficulty = 4

// ValidProof reports whether proof is a valid successor of lastProof: the
// SHA-256 hex digest of the two proofs concatenated as decimal strings must
// end with difficulty zero characters.
func ValidProof(lastProof, proof uint64, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	guess := strconv.FormatUint(lastProof, 10) + strconv.FormatUint(proof, 10)
	sum := sha256.Sum256([]byte(guess))
	digest := hex.EncodeToString(sum[:])
	return strings.HasSuffix(digest, strings.Repeat("0", difficulty))
}

// ProofOfWork searches for the smallest proof that satisfies ValidProof
// against lastProof. The scan is linear from zero, so the result is
// deterministic for a given (lastProof, difficulty) pair.
func ProofOfWork(lastProof uint64, difficulty int) uint64 {
	var proof uint64
	for !ValidProof(lastProof, proof, difficulty) {
		proof++
	}
	return proof
}
