package workflow

import (
	"errors"
	"fmt"
)

// ErrContract matches every *ContractError.
var ErrContract = errors.New("workflow: ui contract violated")

// ContractError reports that the application did not render what a
// workflow step expects, e.g. a control bar with the wrong number of
// buttons. It ends the scenario.
type ContractError struct {
	Check string
	Want  any
	Got   any
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("workflow: %s: want %v, got %v", e.Check, e.Want, e.Got)
}

func (e *ContractError) Is(target error) bool { return target == ErrContract }

func expectEqual[T comparable](check string, want, got T) error {
	if want != got {
		return &ContractError{Check: check, Want: want, Got: got}
	}
	return nil
}

func missing(selector string) error {
	return &ContractError{Check: "element " + selector, Want: "present", Got: "absent"}
}
