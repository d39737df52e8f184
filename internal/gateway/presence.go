package gateway

import "context"

// PresenceStore publishes room membership for other gateway instances to
// observe. The gateway works without one; presence is advisory.
type PresenceStore interface {
	Upsert(ctx context.Context, info MemberInfo, ownerInstanceID string, ttlSeconds int) error
	Delete(ctx context.Context, taskID, senderID string) error
	List(ctx context.Context, taskID string) ([]MemberInfo, error)
}

type NoopPresenceStore struct{}

func (NoopPresenceStore) Upsert(context.Context, MemberInfo, string, int) error { return nil }
func (NoopPresenceStore) Delete(context.Context, string, string) error         { return nil }
func (NoopPresenceStore) List(context.Context, string) ([]MemberInfo, error)   { return nil, nil }
