// Package source adapts heterogeneous upstream alarm sources to the unified
// alarm shape.
//
// Two variants exist: field sources expose a flat status record whose fault
// fields are decoded against an allow-list, native sources expose a list of
// discrete alarm objects. Both fail soft: transport and shape failures
// produce an empty result and are kept for diagnostics.
package source
