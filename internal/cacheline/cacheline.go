// Package cacheline holds the padding constants shared by every container
// in this module so that hot atomic fields don't false-share a cache line
// with their neighbours.
package cacheline

// Size is the assumed CPU cache line size. 64 bytes is standard for x86-64;
// 128 bytes covers Apple Silicon and other ARM64 parts with room to spare,
// so we pad to the larger figure everywhere rather than special-case per
// architecture.
const Size = 128

// PadAfterUint64 is the number of padding bytes needed after a single
// uint64-sized atomic field to fill out the rest of a cache line.
const PadAfterUint64 = Size - 8
