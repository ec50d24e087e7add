// Package types defines the core data model shared across the framework:
// tasks, execution results, and the unified structured error type.
//
// The types package is the lowest-level package with no internal dependencies,
// so placing these types here avoids circular imports.
package types
