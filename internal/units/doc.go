// Package units provides the physical units and unit-tagged quantities that
// flow between configuration, the parameter grid and the sweep results.
//
// A [Unit] is parsed from the compact notation used in configuration files
// ("K", "cm^-3", "km/s", "erg / (cm2 s)") and reduced to an SI scale factor
// plus dimensions, so two units convert into each other whenever their
// dimensions match. A [Quantity] couples an N-dimensional array of values with
// one unit; scalars are zero-dimensional quantities.
//
// # Example
//
//	q, _ := units.ParseQuantity("10:100:10 K")
//	kelvin := units.MustParse("K")
//	v, _ := q.To(kelvin)
//
// Temperatures are absolute (kelvin only); offset scales are not supported.
package units
