package userctx

import (
	"context"

	"github.com/nkiryanov/kaizen/internal/models"
)

type claimsKey struct{}

// Put verified access token claims to the context
func New(ctx context.Context, c models.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func FromContext(ctx context.Context) (models.AccessClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(models.AccessClaims)
	return c, ok
}

// Owner of the access token or empty string for anonymous request
func Username(ctx context.Context) string {
	c, _ := FromContext(ctx)
	return c.Username
}
