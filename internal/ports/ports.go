// Package ports hands out host ports for new containers. The sequence is
// process-wide across all container hosts; the Allocator interface exists
// so a per-host variant can be substituted without touching the
// orchestrator.
package ports

import (
	"context"
	"errors"
	"fmt"
)

const maxPort = 65535

var ErrExhausted = errors.New("no free ports left")

type Allocator interface {
	// Next returns the next usable port at or above the configured start
	// port.
	Next(ctx context.Context) (int, error)
}

// Source supplies the currently-assigned ports from persisted sessions.
type Source interface {
	AssignedPorts(ctx context.Context) ([]int, error)
}

var _ Allocator = (*SequenceAllocator)(nil)

type SequenceAllocator struct {
	source    Source
	startPort int
}

func NewSequenceAllocator(source Source, startPort int) *SequenceAllocator {
	return &SequenceAllocator{
		source:    source,
		startPort: startPort,
	}
}

// Next scans the assigned ports for the first gap at or above the start
// port.
func (a *SequenceAllocator) Next(ctx context.Context) (int, error) {
	assigned, err := a.source.AssignedPorts(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading assigned ports: %w", err)
	}

	if len(assigned) == 0 {
		return a.startPort, nil
	}

	used := make(map[int]struct{}, len(assigned))
	for _, p := range assigned {
		used[p] = struct{}{}
	}

	candidate := a.startPort
	for {
		if candidate >= maxPort {
			return 0, ErrExhausted
		}
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
		candidate++
	}
}
