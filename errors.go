package octree

import "github.com/pkg/errors"

// Mutations validate their arguments before touching any node, so each of
// these failures leaves the tree exactly as it was. Callers match them with
// errors.Is.
var (
	// ErrOutOfBounds is returned when an object's position or extent is not
	// contained by the root bounds of the tree.
	ErrOutOfBounds = errors.New("object is outside the bounds of the octree")

	// ErrNotFound is returned when no object with the given id is present.
	ErrNotFound = errors.New("no object with the given id")

	// ErrDuplicateID is returned when inserting an id that is already
	// present without an intervening remove.
	ErrDuplicateID = errors.New("an object with the given id is already present")
)
