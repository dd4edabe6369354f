// Package simdkit implements the bulk byte-scan primitives the detection
// pipeline may use when simd_on is set (§4.H): a fast byte search, an
// ASCII-letter classification bitmask, and a fixed-pattern comparator.
// Kernel selection is gated on detected CPU features at package init; every
// kernel is required to return bit-identical results to its scalar
// fallback, so callers never observe a behavioural difference, only a
// speed one.
package simdkit

import "github.com/klauspost/cpuid/v2"

// accelerated reports whether the wide-word kernels should run instead of
// the byte-at-a-time scalar ones. Checked once at package init rather than
// per call, since CPU features don't change mid-process.
var accelerated = cpuid.CPU.Has(cpuid.SSE42) || cpuid.CPU.Has(cpuid.ASIMD)

// KernelName reports which kernel family this process selected, for
// diagnostics and logging; it has no effect on Find/Classify/Compare
// output.
func KernelName() string {
	if accelerated {
		return "wide-word"
	}
	return "scalar"
}

// FindByte returns the offset of the first occurrence of b in window, or
// false if absent.
func FindByte(window []byte, b byte) (int, bool) {
	if accelerated {
		return findByteWide(window, b)
	}
	return findByteScalar(window, b)
}

// ClassifyASCIILetters returns a bitmask with bit i set when window[i] is
// an ASCII letter (A-Z or a-z). The mask is packed 8 bits per byte, bit 0
// of mask[0] corresponding to window[0].
func ClassifyASCIILetters(window []byte) []byte {
	if accelerated {
		return classifyLettersWide(window)
	}
	return classifyLettersScalar(window)
}

// CompareFixed reports whether window[offset:offset+len(pattern)] equals
// pattern. pattern must be at most 32 bytes; longer patterns are rejected
// to keep the operation boundable by a single wide-word load on real
// hardware kernels.
func CompareFixed(window []byte, offset int, pattern []byte) bool {
	if len(pattern) > 32 {
		return false
	}
	if offset < 0 || offset+len(pattern) > len(window) {
		return false
	}
	if accelerated {
		return compareFixedWide(window, offset, pattern)
	}
	return compareFixedScalar(window, offset, pattern)
}
