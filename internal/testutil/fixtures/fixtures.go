// Package fixtures provides canonical test data shared across the
// notewell-core test suites.
package fixtures

import (
	"github.com/notewell/notewell-core/pkg/auth"
)

// Ada is the primary test caller.
func Ada() auth.Identity {
	return auth.Identity{
		Email:   "ada@example.com",
		Name:    "Ada Lovelace",
		Picture: "https://cdn.example.com/ada.png",
	}
}

// Grace is a second caller, used wherever a test needs a foreign owner.
func Grace() auth.Identity {
	return auth.Identity{
		Email:   "grace@example.com",
		Name:    "Grace Hopper",
		Picture: "https://cdn.example.com/grace.png",
	}
}

// IdentityHeaders returns the metadata headers the local-verification
// strategy derives the given identity from.
func IdentityHeaders(identity auth.Identity) map[string]string {
	return map[string]string{
		auth.HeaderIdentityEmail:   identity.Email,
		auth.HeaderIdentityName:    identity.Name,
		auth.HeaderIdentityPicture: identity.Picture,
	}
}
