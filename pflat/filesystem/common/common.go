// Package common holds the pieces shared by the flatten and restore runs:
// path containment checks, extension normalisation, progress counters and
// the error taxonomy. Helpers are built with their constructors, such as
// NewPathUtils.
package common
