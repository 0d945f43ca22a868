package usecase

import "context"

// EventPublisher announces identity changes to downstream services. All
// publications are best-effort; callers log and continue on failure.
type EventPublisher interface {
	UserCreated(ctx context.Context, userID string, email, phone *string, source string) error
}
