package ports

import (
	"context"

	"github.com/melih/lighthouse-classroom/internal/core/domain"
)

// PortUsage is the allocation history a store hands to an AllocateFunc.
type PortUsage struct {
	// Allocated is false until the first port has ever been handed out.
	Allocated bool
	// HighWater is the highest port ever allocated, including deleted records.
	HighWater int
}

// AllocateFunc picks the next host port from the current usage.
type AllocateFunc func(usage PortUsage) (int, error)

// RecordStore persists container records.
type RecordStore interface {
	GetRecord(ctx context.Context, resourceID string) (*domain.ContainerRecord, error)
	ListRecords(ctx context.Context) ([]*domain.ContainerRecord, error)
	// CreateRecord reads the port usage, calls allocate and inserts the record
	// inside one atomic unit, so concurrent creations never share a port.
	CreateRecord(ctx context.Context, resourceID, uniqueName string, allocate AllocateFunc) (*domain.ContainerRecord, error)
	// UpdateRecord applies fn to the stored record transactionally.
	UpdateRecord(ctx context.Context, resourceID string, fn func(*domain.ContainerRecord) error) (*domain.ContainerRecord, error)
	DeleteRecord(ctx context.Context, resourceID string) error
}

// ResourceStore persists resources.
type ResourceStore interface {
	GetResource(ctx context.Context, id string) (*domain.Resource, error)
	ListResources(ctx context.Context) ([]*domain.Resource, error)
	SaveResource(ctx context.Context, res *domain.Resource) error
	DeleteResource(ctx context.Context, id string) error
}

// Store is a backend holding both resources and container records.
type Store interface {
	RecordStore
	ResourceStore
	Close() error
}
