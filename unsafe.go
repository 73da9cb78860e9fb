package serialtree

import "unsafe"

// The snapshot layer reinterprets the arena slabs as raw byte ranges.
// This assumes little-endian layout, same as the rest of the wire
// format; a snapshot is not portable to a big-endian host.

// nodesToBytes views a node slab as bytes without copying.
func nodesToBytes(s []mwNode) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*nodeStride)
}

// bytesToNodes views a byte range as node slots without copying. The
// input length must be a multiple of the node stride.
func bytesToNodes(b []byte) []mwNode {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*mwNode)(unsafe.Pointer(&b[0])), len(b)/nodeStride)
}

// floatsToBytes views a float64 slice as bytes without copying.
func floatsToBytes(s []float64) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*8)
}

// bytesToFloats views a byte range as float64s without copying. The
// input length must be a multiple of 8.
func bytesToFloats(b []byte) []float64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b[0])), len(b)/8)
}
