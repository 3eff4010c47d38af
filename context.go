package emailauth

import "context"

type clientIPContextKey struct{}
type workspaceIDContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// on audit events and uses it for request throttling.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithWorkspaceID attaches a workspace identifier to ctx so audit events from
// a multi-workspace host can be told apart.
func WithWorkspaceID(ctx context.Context, workspaceID string) context.Context {
	return context.WithValue(ctx, workspaceIDContextKey{}, workspaceID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func workspaceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	workspaceID, _ := ctx.Value(workspaceIDContextKey{}).(string)
	return workspaceID
}
