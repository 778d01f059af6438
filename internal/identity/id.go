// Package identity mints the per-process ClientId used to tag every frame
// a client puts on the wire and to suppress rendering of its own echoes.
package identity

import "github.com/google/uuid"

// ClientId is an opaque 128-bit value, textually serializable as canonical
// hyphenated hex. It is minted once at client start and never changes.
type ClientId uuid.UUID

// New mints a fresh random ClientId.
func New() ClientId {
	return ClientId(uuid.New())
}

// Parse decodes the canonical hyphenated-hex textual form produced by String.
func Parse(s string) (ClientId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ClientId{}, err
	}
	return ClientId(u), nil
}

// String renders the canonical hyphenated-hex form.
func (c ClientId) String() string {
	return uuid.UUID(c).String()
}

// Equal reports whether two ClientIds are the same identity.
func (c ClientId) Equal(o ClientId) bool {
	return uuid.UUID(c) == uuid.UUID(o)
}
