package fundingsource

import "context"

// Resolver looks up grant items and org-funded slots.
type Resolver interface {
	Resolve(ctx context.Context, source Source) (Details, error)
}

type Repository interface {
	Resolver
	Upsert(ctx context.Context, details Details) error
}
