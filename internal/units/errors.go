package units

import "errors"

var (
	// ErrUnknownUnit indicates a unit symbol missing from the symbol table.
	ErrUnknownUnit = errors.New("units: unknown unit")

	// ErrIncompatibleUnits indicates a conversion between different dimensions.
	ErrIncompatibleUnits = errors.New("units: incompatible dimensions")

	// ErrInvalidQuantity indicates a quantity string that cannot be parsed.
	ErrInvalidQuantity = errors.New("units: invalid quantity")
)
