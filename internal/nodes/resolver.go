package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/medledger/medledger/internal/ledger"
)

// ErrPeerUnavailable marks a peer that could not be reached or returned a
// malformed chain. Resolution skips the peer and continues.
var ErrPeerUnavailable = errors.New("peer unavailable")

// Resolution states. The resolver is idle between Resolve calls; a call
// walks Fetching -> Comparing and, when a longer valid chain was found,
// Adopting, before returning to Idle.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateComparing
	StateAdopting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateComparing:
		return "comparing"
	case StateAdopting:
		return "adopting"
	default:
		return "unknown"
	}
}

// Resolver implements longest-valid-chain consensus over the registered
// peers. Resolve may be invoked from concurrent requests; state is atomic so
// observers never race with a resolution in progress.
type Resolver struct {
	registry *Registry
	svc      *ledger.Service
	client   *http.Client
	timeout  time.Duration
	logger   zerolog.Logger

	state atomic.Int32
}

func NewResolver(registry *Registry, svc *ledger.Service, timeout time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		svc:      svc,
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		logger:   logger,
	}
}

// State returns the resolver's current phase.
func (r *Resolver) State() State {
	return State(r.state.Load())
}

func (r *Resolver) setState(s State) {
	r.state.Store(int32(s))
}

type chainResponse struct {
	Chain  []*ledger.Block `json:"chain"`
	Length int             `json:"length"`
}

// fetchChain retrieves a peer's full chain.
func (r *Resolver) fetchChain(ctx context.Context, peer string) ([]*ledger.Block, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peer+"/chain", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnavailable, peer, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnavailable, peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrPeerUnavailable, peer, resp.StatusCode)
	}

	var body chainResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %s: decode chain: %v", ErrPeerUnavailable, peer, err)
	}
	return body.Chain, nil
}

// Resolve queries every registered peer for its chain and adopts the longest
// valid one when it is strictly longer than the local chain. Unreachable
// peers are skipped. It returns true when the local chain was replaced.
//
// Peers are visited in the registry's sorted order, so among equally long
// candidates the first peer in that order wins.
func (r *Resolver) Resolve(ctx context.Context) (bool, error) {
	localLen, err := r.svc.Length(ctx)
	if err != nil {
		return false, err
	}

	r.setState(StateFetching)
	defer r.setState(StateIdle)

	var best []*ledger.Block
	bestLen := localLen

	for _, peer := range r.registry.List() {
		chain, err := r.fetchChain(ctx, peer)
		if err != nil {
			r.logger.Warn().Str("peer", peer).Err(err).Msg("skipping peer during resolution")
			continue
		}

		r.setState(StateComparing)
		if len(chain) <= bestLen {
			continue
		}
		if !r.svc.Validate(chain) {
			r.logger.Warn().Str("peer", peer).Int("length", len(chain)).Msg("peer chain failed validation")
			continue
		}

		best = chain
		bestLen = len(chain)
		r.logger.Info().Str("peer", peer).Int("length", bestLen).Msg("found longer valid chain")
	}

	if best == nil {
		return false, nil
	}

	r.setState(StateAdopting)
	if err := r.svc.Replace(ctx, best); err != nil {
		return false, err
	}
	return true, nil
}
