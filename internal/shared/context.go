package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting staff id in context. Identity is
// established by the excluded auth collaborator; the core only needs
// attribution for ledger entries and audit records.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the acting staff id, zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	actorID, _ := ctx.Value(actorContextKey{}).(int64)
	return actorID
}
