package ports

import (
	"context"
	"errors"
	"testing"
)

type staticSource struct {
	ports []int
	err   error
}

func (s *staticSource) AssignedPorts(ctx context.Context) ([]int, error) {
	return s.ports, s.err
}

func TestNextFindsFirstGap(t *testing.T) {
	a := NewSequenceAllocator(&staticSource{ports: []int{5000, 5001, 5003}}, 5000)

	port, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if port != 5002 {
		t.Errorf("expected 5002 (the gap), got %d", port)
	}
}

func TestNextWithoutAssignedPortsReturnsStartPort(t *testing.T) {
	a := NewSequenceAllocator(&staticSource{}, 8100)

	port, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if port != 8100 {
		t.Errorf("expected start port 8100, got %d", port)
	}
}

func TestNextSkipsPortsBelowStart(t *testing.T) {
	a := NewSequenceAllocator(&staticSource{ports: []int{5000, 5001}}, 6000)

	port, err := a.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if port != 6000 {
		t.Errorf("ports below the start port must not influence the scan, got %d", port)
	}
}

func TestNextExhaustedAtMaxPort(t *testing.T) {
	assigned := []int{65533, 65534}
	a := NewSequenceAllocator(&staticSource{ports: assigned}, 65533)

	if _, err := a.Next(context.Background()); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestNextPropagatesSourceError(t *testing.T) {
	srcErr := errors.New("db gone")
	a := NewSequenceAllocator(&staticSource{err: srcErr}, 5000)

	if _, err := a.Next(context.Background()); !errors.Is(err, srcErr) {
		t.Errorf("expected wrapped source error, got %v", err)
	}
}
