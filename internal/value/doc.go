// Package value provides the generic JSON value tree used throughout wasmpipe.
//
// This package imports nothing internal. Every other package that touches
// documents (codecs, schema checks, the journal, the harness) goes through
// these types.
//
// Key design constraints:
//   - Value is sealed: Null, Bool, Int, Float, String, Array and *Object only
//   - Null is an explicit type, never a nil interface
//   - Object keeps insertion order for display; equality ignores order
//   - Integers that fit int64 stay Int; everything else numeric is Float
package value
