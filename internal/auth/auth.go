// Package auth defines the pluggable authentication collaborator spec.md
// §1 and §6 call for: cryptographic verification and signing of on-flash
// nodes is treated as a narrow, swappable interface, never a concrete
// algorithm baked into the node codec.
package auth

import "errors"

// ErrNoKey is returned by a Signer whose key material was never
// configured — e.g. no PIN was present in the environment.
var ErrNoKey = errors.New("auth: no key material configured")

// Signer is the single hashing context the session holds for the
// lifetime of a run (spec.md §5: "the authentication collaborator...
// holds a single hashing context; only the main thread mutates it").
type Signer interface {
	// Sign returns the authentication tag for payload, to be stored in an
	// auth node's value field.
	Sign(payload []byte) ([]byte, error)
	// Verify reports whether tag is the correct authentication tag for
	// payload.
	Verify(payload, tag []byte) (bool, error)
}

// None is a Signer for unauthenticated volumes: Sign always fails and
// Verify always reports the node as unverifiable.
type None struct{}

func (None) Sign([]byte) ([]byte, error)         { return nil, ErrNoKey }
func (None) Verify([]byte, []byte) (bool, error) { return false, ErrNoKey }
