package forge

import "errors"

// Sentinel errors surfaced to callers across package boundaries. Verification
// paths (VerifyChain, FindDivergence) never return these; they report a
// structured result instead, per the propagation policy in the design notes.
var (
	// ErrInvalidHash is returned when a caller supplies a value that is not
	// exactly 64 lowercase hex characters where a hash is required.
	ErrInvalidHash = errors.New("forge: invalid hash")

	// ErrNotSealed is returned by Chain.ProveAtom when the requested atom
	// has not yet been covered by a sealed block.
	ErrNotSealed = errors.New("forge: atom not sealed")

	// ErrNoPending is returned by OTSClient.CheckOTSUpgrade when there is
	// no prior pending submission for the given root.
	ErrNoPending = errors.New("forge: no pending ots submission")

	// ErrUnknownAction is returned when a store lookup misses the action sidecar.
	ErrUnknownAction = errors.New("forge: unknown action hash")
)
