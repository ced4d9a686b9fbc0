package internaltypes

import "errors"

var (
	ErrNotBooked = errors.New("reservation not completed within the allotted time")
	ErrNotFound  = errors.New("not found")
)
