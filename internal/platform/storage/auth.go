package storage

import (
	"errors"

	"github.com/teleshop/bot/internal/platform/auth"
)

// ErrPermissionDenied indicates the caller may not access the object.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload checks whether the identity may fetch the object. Proof
// review links default to staff access; AllowAnonymous covers pre-signed links
// handed to the customer in chat.
func AuthorizeDownload(identity *auth.Identity, ownerID string, allowAnonymous bool) error {
	if allowAnonymous {
		return nil
	}
	if identity == nil {
		return ErrPermissionDenied
	}
	if ownerID != "" && identity.UID == ownerID {
		return nil
	}
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return nil
	}
	return ErrPermissionDenied
}
