package domain

import (
	"fmt"
	"time"
)

const (
	// MinHostPort and MaxHostPort bound the host ports handed out to records.
	MinHostPort = 10000
	MaxHostPort = 22000
	// ContainerPort is where every managed container serves HTTP.
	ContainerPort = 80
)

// PortRange is an inclusive host port range.
type PortRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// DefaultPortRange returns [MinHostPort, MaxHostPort].
func DefaultPortRange() PortRange {
	return PortRange{Min: MinHostPort, Max: MaxHostPort}
}

// Contains reports whether port lies inside the range.
func (r PortRange) Contains(port int) bool {
	return port >= r.Min && port <= r.Max
}

// Validate checks the range is well formed and inside the TCP port space.
func (r PortRange) Validate() error {
	if r.Min < 1 || r.Max > 65535 || r.Min > r.Max {
		return fmt.Errorf("%w: invalid range [%d, %d]", ErrPortOutOfRange, r.Min, r.Max)
	}
	return nil
}

// RecordState is the derived lifecycle state of a ContainerRecord.
type RecordState string

const (
	StateUnbuilt      RecordState = "unbuilt"
	StateNeedsRebuild RecordState = "needs-rebuild"
	StateRunning      RecordState = "running"
)

// ContainerRecord maps a resource to its container name, host port and rebuild flag.
type ContainerRecord struct {
	ResourceID   string    `json:"resource_id" yaml:"resource_id"`
	UniqueName   string    `json:"unique_name" yaml:"unique_name"`
	HostPort     int       `json:"host_port" yaml:"host_port"`
	NeedsRebuild bool      `json:"needs_rebuild" yaml:"needs_rebuild"`
	BuiltAt      time.Time `json:"built_at,omitempty" yaml:"built_at,omitempty"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// State derives the record's lifecycle state from the rebuild flag and build history.
func (r *ContainerRecord) State() RecordState {
	switch {
	case r.NeedsRebuild && r.BuiltAt.IsZero():
		return StateUnbuilt
	case r.NeedsRebuild:
		return StateNeedsRebuild
	default:
		return StateRunning
	}
}
