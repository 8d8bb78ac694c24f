package nodes

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidNode marks a peer address that is not a well-formed network
// location. An invalid address never enters the registry.
var ErrInvalidNode = errors.New("invalid node address")

// Registry holds the set of known peer nodes. Peers are stored as normalized
// scheme://host:port addresses; registration is idempotent.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]struct{})}
}

// Normalize parses and canonicalizes a peer address. Bare host:port values
// are accepted and get an http scheme. Paths, queries and fragments are
// stripped; only scheme and authority identify a peer.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidNode)
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidNode, addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidNode, addr, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: %q: missing host", ErrInvalidNode, addr)
	}

	return u.Scheme + "://" + u.Host, nil
}

// Register normalizes and adds a peer. Re-registering an existing peer is a
// no-op.
func (r *Registry) Register(addr string) (string, error) {
	normalized, err := Normalize(addr)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.peers[normalized] = struct{}{}
	r.mu.Unlock()

	return normalized, nil
}

// RegisterAll normalizes every address before any is added, so a request
// with one invalid address registers nothing. Returns the normalized peers.
func (r *Registry) RegisterAll(addrs []string) ([]string, error) {
	normalized := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		n, err := Normalize(addr)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}

	r.mu.Lock()
	for _, n := range normalized {
		r.peers[n] = struct{}{}
	}
	r.mu.Unlock()

	return normalized, nil
}

// List returns the registered peers in sorted order. The sorted order is the
// deterministic iteration order used by consensus resolution.
func (r *Registry) List() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.peers))
	for p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Strings(out)
	return out
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
