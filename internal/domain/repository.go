package domain

import "context"

// RequestStore persists generation requests. Implementations must make writes
// visible to subsequent reads and apply each Update atomically per record.
type RequestStore interface {
	Create(ctx context.Context, req *GenerationRequest) error
	GetByID(ctx context.Context, id string) (*GenerationRequest, error)
	Update(ctx context.Context, id string, update RequestUpdate) (*GenerationRequest, error)
	ListByStatus(ctx context.Context, status Status) ([]GenerationRequest, error)
}
