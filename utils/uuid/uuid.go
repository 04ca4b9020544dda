package uuid

import (
	google_uuid "github.com/google/uuid"
)

// namespace scopes name-based identifiers generated by this module
var namespace = google_uuid.MustParse("6f1c7a52-2d35-4b8e-9a53-1f0c2e8d4b17")

// MustUUID returns a new random identifier
func MustUUID() string {
	return google_uuid.New().String()
}

// FromName returns a deterministic identifier for name.
// Equal names always produce equal identifiers.
func FromName(name []byte) string {
	return google_uuid.NewSHA1(namespace, name).String()
}
