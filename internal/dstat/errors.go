package dstat

import (
	"errors"
	"fmt"
)

// ErrHeaderMisalignment is wrapped by every MisalignmentError.
var ErrHeaderMisalignment = errors.New("dstat header misalignment")

// MisalignmentError reports two rows of the dump whose column counts differ.
type MisalignmentError struct {
	Row  string
	Want int
	Got  int
}

func (e *MisalignmentError) Error() string {
	return fmt.Sprintf("%s row has %d columns, expected %d", e.Row, e.Got, e.Want)
}

// Unwrap lets errors.Is match ErrHeaderMisalignment.
func (e *MisalignmentError) Unwrap() error { return ErrHeaderMisalignment }
