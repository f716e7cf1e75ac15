package services

import (
	"fmt"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/ports"
)

// PortAllocator hands out host ports monotonically from a fixed range.
// Freed ports are never reused.
type PortAllocator struct {
	rng domain.PortRange
}

// NewPortAllocator creates an allocator over rng.
func NewPortAllocator(rng domain.PortRange) (*PortAllocator, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	return &PortAllocator{rng: rng}, nil
}

// Allocate returns the range minimum when nothing was ever allocated and
// high-water + 1 otherwise. It must run inside the store's creation transaction.
func (a *PortAllocator) Allocate(usage ports.PortUsage) (int, error) {
	candidate := a.rng.Min
	if usage.Allocated && usage.HighWater+1 > candidate {
		candidate = usage.HighWater + 1
	}
	if candidate > a.rng.Max {
		return 0, fmt.Errorf("%w: next port %d exceeds %d", domain.ErrPortRangeExhausted, candidate, a.rng.Max)
	}
	return candidate, nil
}
