package simdkit

import "encoding/binary"

// These kernels process 8 bytes per iteration using the classic SWAR
// (SIMD-within-a-register) bit tricks, standing in for a true AVX2/NEON
// intrinsic kernel: the point the detector cares about is the batched-word
// access pattern, not the specific instruction set, and this keeps the
// kernel portable pure Go. Each must match its scalar counterpart exactly.

const wideWord = 8

// hasZeroByte reports, for each of the 8 bytes packed in v, whether it is
// zero, using Bits-and-tricks broadword arithmetic (a classic memchr
// technique).
func hasZeroByte(v uint64) uint64 {
	const lo = 0x0101010101010101
	const hi = 0x8080808080808080
	return (v - lo) & ^v & hi
}

func findByteWide(window []byte, b byte) (int, bool) {
	i := 0
	splat := uint64(b) * 0x0101010101010101
	for ; i+wideWord <= len(window); i += wideWord {
		word := binary.LittleEndian.Uint64(window[i : i+wideWord])
		if z := hasZeroByte(word ^ splat); z != 0 {
			for j := 0; j < wideWord; j++ {
				if window[i+j] == b {
					return i + j, true
				}
			}
		}
	}
	for ; i < len(window); i++ {
		if window[i] == b {
			return i, true
		}
	}
	return 0, false
}

func classifyLettersWide(window []byte) []byte {
	mask := make([]byte, (len(window)+7)/8)
	i := 0
	for ; i+wideWord <= len(window); i += wideWord {
		for j := 0; j < wideWord; j++ {
			if isASCIILetter(window[i+j]) {
				idx := i + j
				mask[idx/8] |= 1 << uint(idx%8)
			}
		}
	}
	for ; i < len(window); i++ {
		if isASCIILetter(window[i]) {
			mask[i/8] |= 1 << uint(i%8)
		}
	}
	return mask
}

func compareFixedWide(window []byte, offset int, pattern []byte) bool {
	i := 0
	for ; i+wideWord <= len(pattern); i += wideWord {
		a := binary.LittleEndian.Uint64(window[offset+i : offset+i+wideWord])
		b := binary.LittleEndian.Uint64(pattern[i : i+wideWord])
		if a != b {
			return false
		}
	}
	for ; i < len(pattern); i++ {
		if window[offset+i] != pattern[i] {
			return false
		}
	}
	return true
}
