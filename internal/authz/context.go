package authz

import (
	"context"
	"net/http"

	"github.com/Tubbz-alt/adsbrecorder/internal/models"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID      int64
	Username    string
	Authorities []models.Authority
}

func (id Identity) HasAuthority(a models.Authority) bool {
	return models.HasAuthority(id.Authorities, a)
}

// WithIdentity stores the principal on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == 0 {
		return Identity{}, false
	}
	return id, true
}

func IdentityFromRequest(r *http.Request) (Identity, bool) {
	return IdentityFromContext(r.Context())
}
