// Package balancer selects the container host that receives the next
// container. Strategies are pure functions of the pool configuration and
// the current per-host session counts, except for one random draw when
// there is nothing to balance yet.
package balancer

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"distributor/internal/config"
)

const (
	StrategyEqual    = "equal"
	StrategyFillhost = "fillhost"
)

var (
	ErrInvalidStrategy = errors.New("invalid balance strategy")
	ErrExhausted       = errors.New("load balancing failed, all container hosts fully loaded")
)

type Strategy interface {
	Name() string
	pick(counts map[string]int, pool []config.ContainerHost) (*config.ContainerHost, error)
}

type Balancer struct {
	strategy Strategy
	pool     []config.ContainerHost
}

// New fails fast on an unknown strategy name so misconfiguration surfaces
// at startup, not on the first start request.
func New(strategyName string, pool []config.ContainerHost) (*Balancer, error) {
	var s Strategy
	switch strategyName {
	case StrategyEqual:
		s = equalStrategy{}
	case StrategyFillhost:
		s = fillhostStrategy{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStrategy, strategyName)
	}

	return &Balancer{strategy: s, pool: pool}, nil
}

func (b *Balancer) StrategyName() string {
	return b.strategy.Name()
}

// Pick chooses a host for the next container. counts maps host address to
// its current session count; hosts missing from the map are treated as
// having none.
func (b *Balancer) Pick(counts map[string]int) (*config.ContainerHost, error) {
	if len(b.pool) == 0 {
		return nil, ErrExhausted
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		// Nothing to balance yet.
		return randomHost(b.pool), nil
	}

	return b.strategy.pick(counts, b.pool)
}

type equalStrategy struct{}

func (equalStrategy) Name() string { return StrategyEqual }

func (equalStrategy) pick(counts map[string]int, pool []config.ContainerHost) (*config.ContainerHost, error) {
	used := 0
	for _, h := range pool {
		if counts[h.Addr] > 0 {
			used++
		}
	}

	// Fill new hosts before redistributing load.
	if used < len(pool) {
		for i := range pool {
			if counts[pool[i].Addr] == 0 {
				return &pool[i], nil
			}
		}
	}

	if allCountsEqual(counts, pool) {
		// Perfectly balanced, no preference.
		return randomHost(pool), nil
	}

	// Scan hosts by descending count and return the first step down that
	// still has capacity. This deliberately is not a minimum search; tests
	// pin the exact scan order.
	ordered := hostsByCount(counts, pool, true)
	var previous = -1
	for _, idx := range ordered {
		h := &pool[idx]
		count := counts[h.Addr]
		if count >= h.MaxContainers {
			continue
		}
		if previous >= 0 && count < previous {
			return h, nil
		}
		previous = count
	}

	return nil, fmt.Errorf("%w (strategy %s)", ErrExhausted, StrategyEqual)
}

type fillhostStrategy struct{}

func (fillhostStrategy) Name() string { return StrategyFillhost }

func (fillhostStrategy) pick(counts map[string]int, pool []config.ContainerHost) (*config.ContainerHost, error) {
	ordered := hostsByCount(counts, pool, false)
	for _, idx := range ordered {
		h := &pool[idx]
		if _, known := counts[h.Addr]; !known {
			continue
		}
		if counts[h.Addr] < h.MaxContainers {
			return h, nil
		}
	}

	// Every known host is full; an unused host may still be available.
	for i := range pool {
		if _, known := counts[pool[i].Addr]; !known {
			return &pool[i], nil
		}
	}

	return nil, fmt.Errorf("%w (strategy %s)", ErrExhausted, StrategyFillhost)
}

// hostsByCount returns pool indices ordered by session count, descending
// or ascending. Ties keep pool order so scans stay deterministic.
func hostsByCount(counts map[string]int, pool []config.ContainerHost, descending bool) []int {
	ordered := make([]int, len(pool))
	for i := range ordered {
		ordered[i] = i
	}

	sort.SliceStable(ordered, func(a, b int) bool {
		ca := counts[pool[ordered[a]].Addr]
		cb := counts[pool[ordered[b]].Addr]
		if descending {
			return ca > cb
		}
		return ca < cb
	})

	return ordered
}

func allCountsEqual(counts map[string]int, pool []config.ContainerHost) bool {
	first := counts[pool[0].Addr]
	for _, h := range pool[1:] {
		if counts[h.Addr] != first {
			return false
		}
	}
	return true
}

func randomHost(pool []config.ContainerHost) *config.ContainerHost {
	return &pool[rand.IntN(len(pool))]
}
