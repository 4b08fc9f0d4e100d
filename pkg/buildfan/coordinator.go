// Package buildfan runs the per-platform build jobs of a release: parallel
// fan-out with a join barrier, a latency-only dependency cache, and retry
// for transient infrastructure operations.
package buildfan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrBuildFailure marks a platform build that produced no artifact. Fatal;
// builds are never retried.
var ErrBuildFailure = errors.New("platform build produced no artifact")

// Artifact is one raw platform binary. Immutable once produced.
type Artifact struct {
	Platform string
	Path     string
	Checksum string
}

// BuildFunc builds one platform. Each invocation is independent; builds
// share no mutable state.
type BuildFunc func(ctx context.Context, platform string) (Artifact, error)

// Coordinator fans builds out across platforms and joins before returning.
type Coordinator struct {
	Platforms []string
	Build     BuildFunc
	// Limit caps concurrent builds; zero means one goroutine per platform.
	Limit int
}

// Run builds every platform concurrently and returns the complete artifact
// set keyed by platform. The first failure cancels the remaining builds
// and fails the whole fan-out.
func (c *Coordinator) Run(ctx context.Context) (map[string]Artifact, error) {
	if len(c.Platforms) == 0 {
		return nil, fmt.Errorf("build fan-out: no platforms configured")
	}
	if c.Build == nil {
		return nil, fmt.Errorf("build fan-out: no build function")
	}

	results := make([]Artifact, len(c.Platforms))
	g, gctx := errgroup.WithContext(ctx)
	if c.Limit > 0 {
		g.SetLimit(c.Limit)
	}

	for i, platform := range c.Platforms {
		i, platform := i, platform
		g.Go(func() error {
			a, err := c.Build(gctx, platform)
			if err != nil {
				return fmt.Errorf("build %s: %w", platform, err)
			}
			if _, statErr := os.Stat(a.Path); statErr != nil {
				return fmt.Errorf("build %s: %w: %v", platform, ErrBuildFailure, statErr)
			}
			a.Platform = platform
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]Artifact, len(results))
	for _, a := range results {
		out[a.Platform] = a
	}
	return out, nil
}

// RetryTransient runs op up to attempts times with a fixed delay between
// tries. Only for transient infrastructure work (dependency downloads,
// cache fetches); version bump, tagging, and publishing are attempted
// exactly once elsewhere.
func RetryTransient(ctx context.Context, attempts int, delay time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if last = op(ctx); last == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, last)
}
