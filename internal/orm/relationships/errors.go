package relationships

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownRelationship is returned for a field that is not a backpop
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrUnsavedOwner is returned when the owner row has no id to match on
	ErrUnsavedOwner = errors.New("owner row has no id")
)

func unsavedOwner(model string) error {
	return fmt.Errorf("%w: save the %s before loading its backpops", ErrUnsavedOwner, model)
}
