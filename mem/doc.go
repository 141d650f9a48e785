// Package mem implements PoCore's memory subsystem: a hierarchical region
// allocator built from a context (the process-wide allocator root), pools
// (allocation arenas arranged in a parent/child tree), and errors (chained
// values with tracing and unhandled-error bookkeeping).
package mem
