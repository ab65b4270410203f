// Package vm implements the string core of the runtime.
//
// This package contains:
//   - the seeded string hash
//   - immutable String objects and their byte ordering
//   - the Heap that allocates strings and registers them for collection
//   - the StringTable that interns every short string exactly once
//   - the Collector that sweeps unreachable long strings
//   - NaN-boxed Values and the VM context that ties them together
package vm
