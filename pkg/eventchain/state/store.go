package state

// Store is the state-store collaborator contract consumed by the kernel. The
// mediator extracts branches, hands them to event handlers, and commits the
// returned out-states; it never inspects the store's representation.
type Store interface {
	// Active returns deep-copied branches of every independently lifted
	// unit: a lifted node none of whose ancestors is lifted.
	Active() []*Branch

	// Extract returns the deep-copied branch for one identifier: the chain
	// from its root down to the node, plus all the node's descendants.
	Extract(id ID) *Branch

	// Commit writes the units of the given branches back into the store.
	// Committing an unknown identifier is a kernel invariant violation.
	Commit(out []*Branch) error

	// Full returns the whole forest without copying. The returned units
	// share position and velocity slices with the store and must not be
	// modified; it serves setup and sampling-type side effects.
	Full() []*Branch
}

// UnitSnapshotter is implemented by stores that can capture and restore
// their mutable unit data for resumable runs.
type UnitSnapshotter interface {
	SnapshotUnits() ([]byte, error)
	RestoreUnits(data []byte) error
}
