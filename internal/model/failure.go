package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies why an adapter invocation failed. Failures are
// recoverable and scoped to one (item, platform, cycle); they never
// produce or overwrite a snapshot.
type FailureKind string

const (
	FailureTimeout          FailureKind = "timeout"
	FailureStructureChanged FailureKind = "structure_changed"
	FailureRateLimited      FailureKind = "rate_limited"
	FailureBlocked          FailureKind = "blocked"
	FailureUnknown          FailureKind = "unknown"
)

// AdapterFailure reports one failed adapter invocation. Distinct from a
// NotFound result: "site unreachable" is never confused with "genuinely
// unavailable".
type AdapterFailure struct {
	Platform Platform    `json:"platform"`
	ItemID   string      `json:"item_id"`
	Kind     FailureKind `json:"kind"`
	Message  string      `json:"message"`
}

func (f *AdapterFailure) Error() string {
	return fmt.Sprintf("%s adapter failed for %s (%s): %s", f.Platform, f.ItemID, f.Kind, f.Message)
}

// NewFailure builds an AdapterFailure for one (item, platform) pair.
func NewFailure(platform Platform, itemID string, kind FailureKind, message string) *AdapterFailure {
	return &AdapterFailure{Platform: platform, ItemID: itemID, Kind: kind, Message: message}
}

// AsFailure unwraps err into an AdapterFailure, if it is one.
func AsFailure(err error) (*AdapterFailure, bool) {
	var f *AdapterFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
