package core

import (
	"strings"

	"github.com/google/uuid"
)

// Identifier prefixes. Prefixes make ids self describing in logs and audit
// trails.
const (
	PackagePrefix  = "ctx_"
	ResultPrefix   = "res_"
	TrackingPrefix = "trk_"
	EntryPrefix    = "kn_"
	EventPrefix    = "evt_"
)

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }

// NewPrefixedID generates a compact unique identifier carrying prefix.
func NewPrefixedID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewPackageID returns a fresh context package id.
func NewPackageID() string { return NewPrefixedID(PackagePrefix) }

// NewResultID returns a fresh result id.
func NewResultID() string { return NewPrefixedID(ResultPrefix) }

// NewTrackingID returns a fresh processing tracking id.
func NewTrackingID() string { return NewPrefixedID(TrackingPrefix) }
