package serialtree

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/swiss"
	"github.com/klauspost/compress/s2"
	"github.com/zeebo/xxh3"
)

// Snapshot wire layout, little endian:
//
//	+---------+----------+-------+--------+---------+----------+---------+----------+
//	| magic(4)|version(4)|dim(4) |order(4)|nRoots(4)|maxNodes(4)|maxCf(4)|maxGenCf(4)|
//	+---------+----------+-------+--------+---------+----------+---------+----------+
//	|nodeTop(4)|coeffTop(4)|nodeStride(4)|blockFloats(4)| squareNorm(8) |checksum(8)|
//	+----------+-----------+-------------+--------------+---------------+-----------+
//	| node status | coeff status |      node slab      |   coefficient data         |
//	+-------------+--------------+---------------------+----------------------------+
//
// The checksum is xxh3 over everything after the header. The generated
// arena is transient scratch and is never part of a snapshot.
const (
	snapMagic      = 0x53545245 // "STRE"
	snapVersion    = 1
	snapHeaderSize = 64
)

var (
	ErrBadSnapshot  = errors.New("serialtree: malformed snapshot")
	ErrBadChecksum  = errors.New("serialtree: snapshot checksum mismatch")
	ErrBadStructure = errors.New("serialtree: inconsistent snapshot structure")
)

// Snapshot serializes the persistent tree state as one flat byte blob
// suitable for transfer to another process. The caller must guarantee
// exclusive access for the duration of the call and must release all
// generated nodes first: transient state does not travel.
func (t *SerialTree) Snapshot() ([]byte, error) {
	if t.genCoeffs.inUse() > 0 {
		return nil, errors.New("serialtree: snapshot with live generated nodes")
	}
	nTop, cTop := int(t.nodes.top), int(t.coeffs.top)
	payloadLen := nTop + cTop + nTop*nodeStride + cTop*int(t.block)*8
	buf := make([]byte, snapHeaderSize+payloadLen)

	p := buf[snapHeaderSize:]
	copy(p, t.nodes.status[:nTop])
	p = p[nTop:]
	copy(p, t.coeffs.status[:cTop])
	p = p[cTop:]
	copy(p, nodesToBytes(t.nodes.slots[:nTop]))
	p = p[nTop*nodeStride:]
	copy(p, floatsToBytes(t.coeffs.data[:cTop*int(t.block)]))

	h := buf[:snapHeaderSize]
	binary.LittleEndian.PutUint32(h[0:], snapMagic)
	binary.LittleEndian.PutUint32(h[4:], snapVersion)
	binary.LittleEndian.PutUint32(h[8:], uint32(t.dim))
	binary.LittleEndian.PutUint32(h[12:], uint32(t.order))
	binary.LittleEndian.PutUint32(h[16:], uint32(t.nRoots))
	binary.LittleEndian.PutUint32(h[20:], uint32(t.nodes.max))
	binary.LittleEndian.PutUint32(h[24:], uint32(t.coeffs.max))
	binary.LittleEndian.PutUint32(h[28:], uint32(t.genCoeffs.max))
	binary.LittleEndian.PutUint32(h[32:], uint32(nTop))
	binary.LittleEndian.PutUint32(h[36:], uint32(cTop))
	binary.LittleEndian.PutUint32(h[40:], nodeStride)
	binary.LittleEndian.PutUint32(h[44:], uint32(t.block))
	binary.LittleEndian.PutUint64(h[48:], math.Float64bits(t.squareNorm))
	binary.LittleEndian.PutUint64(h[56:], xxh3.Hash(buf[snapHeaderSize:]))
	return buf, nil
}

// SnapshotCompressed returns an s2-compressed snapshot.
func (t *SerialTree) SnapshotCompressed() ([]byte, error) {
	raw, err := t.Snapshot()
	if err != nil {
		return nil, err
	}
	return s2.Encode(nil, raw), nil
}

// Attach reconstructs a tree from a snapshot blob. The blob is copied
// into freshly allocated arenas, then every node reachable from the root
// prefix is relocated: its coefficient access is re-derived from the
// stored block index, the owner back-reference is restored, and the
// lookup and end-node tables are rebuilt. Node counts are recomputed
// from the traversal rather than trusted from the wire.
func Attach(blob []byte) (*SerialTree, error) {
	if len(blob) < snapHeaderSize {
		return nil, ErrBadSnapshot
	}
	h := blob[:snapHeaderSize]
	if binary.LittleEndian.Uint32(h[0:]) != snapMagic {
		return nil, ErrBadSnapshot
	}
	if binary.LittleEndian.Uint32(h[4:]) != snapVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadSnapshot, binary.LittleEndian.Uint32(h[4:]))
	}
	if binary.LittleEndian.Uint32(h[40:]) != nodeStride {
		return nil, fmt.Errorf("%w: node stride mismatch", ErrBadSnapshot)
	}
	if binary.LittleEndian.Uint64(h[56:]) != xxh3.Hash(blob[snapHeaderSize:]) {
		return nil, ErrBadChecksum
	}

	dim := int32(binary.LittleEndian.Uint32(h[8:]))
	order := int32(binary.LittleEndian.Uint32(h[12:]))
	nRoots := int32(binary.LittleEndian.Uint32(h[16:]))
	maxNodes := int32(binary.LittleEndian.Uint32(h[20:]))
	maxCoeff := int32(binary.LittleEndian.Uint32(h[24:]))
	maxGen := int32(binary.LittleEndian.Uint32(h[28:]))
	nTop := int32(binary.LittleEndian.Uint32(h[32:]))
	cTop := int32(binary.LittleEndian.Uint32(h[36:]))

	if dim < 1 || dim > 3 || order < 1 || order > maxOrder {
		return nil, ErrBadSnapshot
	}
	kp1 := order + 1
	kp1d := int32(1)
	for d := int32(0); d < dim; d++ {
		kp1d *= kp1
	}
	tdim := int32(1) << dim
	block := tdim * kp1d
	if binary.LittleEndian.Uint32(h[44:]) != uint32(block) {
		return nil, fmt.Errorf("%w: block stride mismatch", ErrBadSnapshot)
	}
	if nRoots < 1 || nTop < nRoots || nTop > maxNodes || cTop > maxCoeff {
		return nil, ErrBadSnapshot
	}
	want := int(nTop) + int(cTop) + int(nTop)*nodeStride + int(cTop)*int(block)*8
	if len(blob) != snapHeaderSize+want {
		return nil, ErrBadSnapshot
	}

	t := &SerialTree{
		dim:        dim,
		order:      order,
		kp1:        kp1,
		kp1d:       kp1d,
		tdim:       tdim,
		block:      block,
		nRoots:     nRoots,
		lookup:     swiss.New[NodeIndex, int32](int(nTop)),
		squareNorm: math.Float64frombits(binary.LittleEndian.Uint64(h[48:])),
	}
	t.nodes = newNodeArena(maxNodes)
	t.coeffs = newCoeffArena(maxCoeff, block, tdim)
	t.genCoeffs = newCoeffArena(maxGen, block, tdim)

	p := blob[snapHeaderSize:]
	copy(t.nodes.status[:nTop], p[:nTop])
	p = p[nTop:]
	copy(t.coeffs.status[:cTop], p[:cTop])
	p = p[cTop:]
	copy(t.nodes.slots[:nTop], bytesToNodes(p[:int(nTop)*nodeStride]))
	p = p[int(nTop)*nodeStride:]
	copy(t.coeffs.data[:int(cTop)*int(block)], bytesToFloats(p))
	t.nodes.top = nTop
	t.coeffs.top = cTop

	if err := t.relocate(); err != nil {
		return nil, err
	}
	return t, nil
}

// AttachCompressed decodes an s2-compressed snapshot.
func AttachCompressed(blob []byte) (*SerialTree, error) {
	raw, err := s2.Decode(nil, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	return Attach(raw)
}
