package notes

import (
	"github.com/notewell/notewell-core/pkg/auth"
)

// Ownership is enforced by comparing the note's owner email against the
// resolved identity's email. The two access classes respond differently
// on a denial:
//
//   - Reads treat a foreign note exactly like a missing one (the caller
//     sees a null result), so probing ids reveals nothing about which
//     notes exist.
//   - Mutations reject a foreign note the same way they reject a
//     missing one (a generic client error), again without confirming
//     existence.
//
// Both paths keep a denied id indistinguishable from an absent id; they
// differ only in the success shape the operation would otherwise have.

// OwnedBy reports whether the note belongs to the given identity. Notes
// loaded without owner information are owned by no one.
func OwnedBy(n Note, identity auth.Identity) bool {
	return n.OwnerEmail != "" && n.OwnerEmail == identity.Email
}
