package hashindex

import "encoding/binary"

// Bucket file format: a 64-byte header followed by bucketCount 4-byte
// bucket-head entries (int32, -1 = empty chain).
const (
	bucketMagic      = "HIDX"
	bucketVersion    = uint32(1)
	bucketHeaderSize = 64

	offBucketMagic     = 0
	offBucketVersion   = 4
	offBucketCount     = 8
	offBucketSlotCount = 16
	offBucketKeyLen    = 24
	offBucketKeyIsText = 28
	offBucketFreeHead  = 32

	bucketEntrySize = 4
	emptyChainHead  = int32(-1)
)

// Slot file format: no header, just slotCount fixed-size slots, each
//
//	{ occupied:4, next_in_chain:4, next_free:4, data_index:4, key:keyLength }
const (
	slotMetaSize  = 16 // occupied + next_in_chain + next_free + data_index
	slotFreeEnd   = int32(-1)
	slotChainTail = int32(-1)
)

func slotSize(keyLength int) int {
	return slotMetaSize + keyLength
}

type bucketHeader struct {
	BucketCount uint64
	SlotCount   uint64
	KeyLength   uint32
	KeyIsText   bool
	FreeHead    int32
}

func encodeBucketHeader(h bucketHeader) []byte {
	buf := make([]byte, bucketHeaderSize)

	copy(buf[offBucketMagic:], bucketMagic)
	binary.LittleEndian.PutUint32(buf[offBucketVersion:], bucketVersion)
	binary.LittleEndian.PutUint64(buf[offBucketCount:], h.BucketCount)
	binary.LittleEndian.PutUint64(buf[offBucketSlotCount:], h.SlotCount)
	binary.LittleEndian.PutUint32(buf[offBucketKeyLen:], h.KeyLength)

	if h.KeyIsText {
		binary.LittleEndian.PutUint32(buf[offBucketKeyIsText:], 1)
	}

	binary.LittleEndian.PutUint32(buf[offBucketFreeHead:], uint32(h.FreeHead))

	return buf
}

func setBucketFreeHead(data []byte, head int32) {
	binary.LittleEndian.PutUint32(data[offBucketFreeHead:], uint32(head))
}

func getBucketFreeHead(data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(data[offBucketFreeHead:]))
}

func decodeBucketHeader(buf []byte) (bucketHeader, bool) {
	if len(buf) < bucketHeaderSize {
		return bucketHeader{}, false
	}

	if string(buf[offBucketMagic:offBucketMagic+4]) != bucketMagic {
		return bucketHeader{}, false
	}

	if binary.LittleEndian.Uint32(buf[offBucketVersion:]) != bucketVersion {
		return bucketHeader{}, false
	}

	return bucketHeader{
		BucketCount: binary.LittleEndian.Uint64(buf[offBucketCount:]),
		SlotCount:   binary.LittleEndian.Uint64(buf[offBucketSlotCount:]),
		KeyLength:   binary.LittleEndian.Uint32(buf[offBucketKeyLen:]),
		KeyIsText:   binary.LittleEndian.Uint32(buf[offBucketKeyIsText:]) != 0,
		FreeHead:    int32(binary.LittleEndian.Uint32(buf[offBucketFreeHead:])),
	}, true
}

func bucketHead(data []byte, bucketIdx uint64) int32 {
	off := bucketHeaderSize + int(bucketIdx)*bucketEntrySize
	return int32(binary.LittleEndian.Uint32(data[off:]))
}

func setBucketHead(data []byte, bucketIdx uint64, head int32) {
	off := bucketHeaderSize + int(bucketIdx)*bucketEntrySize
	binary.LittleEndian.PutUint32(data[off:], uint32(head))
}

// slotView is a lightweight accessor over one slot's bytes within the
// slot file's mmap'd region.
type slotView []byte

func slotAt(data []byte, keyLength int, idx int32) slotView {
	off := int(idx) * slotSize(keyLength)
	return slotView(data[off : off+slotSize(keyLength)])
}

func (s slotView) occupied() bool         { return binary.LittleEndian.Uint32(s[0:]) != 0 }
func (s slotView) setOccupied(v bool)     { binary.LittleEndian.PutUint32(s[0:], boolToU32(v)) }
func (s slotView) nextInChain() int32     { return int32(binary.LittleEndian.Uint32(s[4:])) }
func (s slotView) setNextInChain(v int32) { binary.LittleEndian.PutUint32(s[4:], uint32(v)) }
func (s slotView) nextFree() int32        { return int32(binary.LittleEndian.Uint32(s[8:])) }
func (s slotView) setNextFree(v int32)    { binary.LittleEndian.PutUint32(s[8:], uint32(v)) }
func (s slotView) dataIndex() int32       { return int32(binary.LittleEndian.Uint32(s[12:])) }
func (s slotView) setDataIndex(v int32)   { binary.LittleEndian.PutUint32(s[12:], uint32(v)) }
func (s slotView) key() []byte            { return s[slotMetaSize:] }

func boolToU32(v bool) uint32 {
	if v {
		return 1
	}

	return 0
}
