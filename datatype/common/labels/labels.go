/*
	Package labels supports clumping of 2d rasters: local connected-component labeling
	of tiles, grouping of buffer positions by value, and the recode tables used to
	reconcile labels across tile boundaries.  Label 0 is reserved for background and
	no-data pixels; real clumps are numbered from 1.
*/
package labels

import "errors"

var (
	// ErrShapeMismatch is returned when buffers that should describe the same tile
	// have differing numbers of elements.
	ErrShapeMismatch = errors.New("labels: buffer shapes do not match")

	// ErrInvalidInputType is returned when value grouping is requested on data that
	// is not integer-like.
	ErrInvalidInputType = errors.New("labels: value grouping requires integer-like data")

	// ErrLabelOutOfRange is returned when a label has no entry in a recode table.
	ErrLabelOutOfRange = errors.New("labels: label outside recode table")
)
