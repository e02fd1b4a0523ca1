package quorum

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidQuorumConfig is returned when the replication factors do
	// not satisfy 1 <= w,r <= n and w+r > n.
	ErrInvalidQuorumConfig = errors.New("invalid quorum configuration")

	// ErrQuorumNotReached is returned when an operation could not collect
	// the required number of replica acknowledgements in time.
	ErrQuorumNotReached = errors.New("quorum not reached")

	// ErrNodeUnreachable marks a transient per-replica failure (dial or
	// transport error). The coordinator absorbs it like any other replica
	// failure; it never surfaces to clients on its own.
	ErrNodeUnreachable = errors.New("node unreachable")
)

// Config holds the replication factors of the cluster. All nodes must run
// with the same values.
type Config struct {
	// N is the number of replicas each key is stored on.
	N int
	// W is the number of acknowledgements a write needs to succeed.
	W int
	// R is the number of responses a read needs to succeed.
	R int
	// Timeout bounds a single coordinated operation.
	Timeout time.Duration
	// Sloppy enables hinted handoff: failed home replicas are substituted
	// with hints instead of failing the write outright.
	Sloppy bool
}

// DefaultConfig returns the conventional n=3, w=2, r=2 setup.
func DefaultConfig() Config {
	return Config{N: 3, W: 2, R: 2, Timeout: 2 * time.Second}
}

// Validate checks the safety condition w+r > n. It must be called before
// the node serves any request; an invalid configuration can silently
// return stale reads.
func (c Config) Validate() error {
	if c.N < 1 {
		return fmt.Errorf("%w: n=%d must be at least 1", ErrInvalidQuorumConfig, c.N)
	}
	if c.W < 1 || c.W > c.N {
		return fmt.Errorf("%w: w=%d must be in [1,%d]", ErrInvalidQuorumConfig, c.W, c.N)
	}
	if c.R < 1 || c.R > c.N {
		return fmt.Errorf("%w: r=%d must be in [1,%d]", ErrInvalidQuorumConfig, c.R, c.N)
	}
	if c.W+c.R <= c.N {
		return fmt.Errorf("%w: w+r=%d must exceed n=%d for quorum intersection", ErrInvalidQuorumConfig, c.W+c.R, c.N)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidQuorumConfig)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("Config{N: %d, W: %d, R: %d, Timeout: %s, Sloppy: %v}", c.N, c.W, c.R, c.Timeout, c.Sloppy)
}
