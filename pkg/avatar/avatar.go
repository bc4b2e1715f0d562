// Package avatar generates deterministic avatar URLs for agent chat identities.
package avatar

import (
	"fmt"
	"net/url"
)

// Variant selects the avatar art style.
type Variant string

const (
	// VariantBotttsNeutral renders a neutral robot face, used for agents.
	VariantBotttsNeutral Variant = "bottts-neutral"
	// VariantInitials renders the seed's initials, used for human users.
	VariantInitials Variant = "initials"
)

const baseURL = "https://api.dicebear.com/9.x"

// URL returns a deterministic DiceBear avatar URL for the given seed. The
// same seed always produces the same image, so the agent identity stays
// stable across upserts.
func URL(seed string, variant Variant) string {
	switch variant {
	case VariantBotttsNeutral, VariantInitials:
	default:
		variant = VariantBotttsNeutral
	}

	q := url.Values{}
	q.Set("seed", seed)
	if variant == VariantInitials {
		q.Set("fontSize", "42")
		q.Set("fontWeight", "500")
	}

	return fmt.Sprintf("%s/%s/svg?%s", baseURL, variant, q.Encode())
}
