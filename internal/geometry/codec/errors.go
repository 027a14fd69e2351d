package codec

import (
	"errors"
	"fmt"
)

// ErrCorruptGeometry matches every *CorruptGeometryError via errors.Is.
var ErrCorruptGeometry = errors.New("corrupt geometry")

// CorruptGeometryError reports a structurally invalid stored geometry.
type CorruptGeometryError struct {
	Reason string
	Offset int // byte offset into the offending payload, -1 if not applicable
}

func corrupt(offset int, format string, args ...any) *CorruptGeometryError {
	return &CorruptGeometryError{Reason: fmt.Sprintf(format, args...), Offset: offset}
}

func (e *CorruptGeometryError) Error() string {
	if e.Offset < 0 {
		return "corrupt geometry: " + e.Reason
	}
	return fmt.Sprintf("corrupt geometry at byte %d: %s", e.Offset, e.Reason)
}

func (e *CorruptGeometryError) Is(target error) bool {
	return target == ErrCorruptGeometry
}
