package master

import "encoding/binary"

// Records file header: 44 bytes, magic + version + first-free-slot index +
// capacity + slot size + bucket count + primary/secondary key lengths +
// lock-enable flag.
const (
	recordsMagic      = "MAST"
	recordsVersion    = uint32(1)
	recordsHeaderSize = 44

	offRecMagic       = 0
	offRecVersion     = 4
	offRecFirstFree   = 8
	offRecCapacity    = 12
	offRecSlotSize    = 20
	offRecBucketCount = 24
	offRecPKeyLen     = 32
	offRecSKeyLen     = 36
	offRecLockEnabled = 40
)

// Slot layout, per the resolved open question:
//
//	{ occupied:1, reserved:3, next_free:4, primary_key:pkeyLen, secondary_key:skeyLen, payload:recordSize }
const (
	slotOccupiedSize = 1
	slotReservedSize = 3
	slotNextFreeSize = 4
	slotMetaSize     = slotOccupiedSize + slotReservedSize + slotNextFreeSize
)

func slotSize(pkeyLen, skeyLen, recordSize int) int {
	return slotMetaSize + pkeyLen + skeyLen + recordSize
}

type recordsHeader struct {
	FirstFree   int32
	Capacity    uint64
	SlotSize    uint32
	BucketCount uint64
	PKeyLen     uint32
	SKeyLen     uint32
	LockEnabled bool
}

func encodeRecordsHeader(h recordsHeader) []byte {
	buf := make([]byte, recordsHeaderSize)

	copy(buf[offRecMagic:], recordsMagic)
	binary.LittleEndian.PutUint32(buf[offRecVersion:], recordsVersion)
	binary.LittleEndian.PutUint32(buf[offRecFirstFree:], uint32(h.FirstFree))
	binary.LittleEndian.PutUint64(buf[offRecCapacity:], h.Capacity)
	binary.LittleEndian.PutUint32(buf[offRecSlotSize:], h.SlotSize)
	binary.LittleEndian.PutUint64(buf[offRecBucketCount:], h.BucketCount)
	binary.LittleEndian.PutUint32(buf[offRecPKeyLen:], h.PKeyLen)
	binary.LittleEndian.PutUint32(buf[offRecSKeyLen:], h.SKeyLen)

	if h.LockEnabled {
		binary.LittleEndian.PutUint32(buf[offRecLockEnabled:], 1)
	}

	return buf
}

func decodeRecordsHeader(buf []byte) (recordsHeader, bool) {
	if len(buf) < recordsHeaderSize {
		return recordsHeader{}, false
	}

	if string(buf[offRecMagic:offRecMagic+4]) != recordsMagic {
		return recordsHeader{}, false
	}

	if binary.LittleEndian.Uint32(buf[offRecVersion:]) != recordsVersion {
		return recordsHeader{}, false
	}

	return recordsHeader{
		FirstFree:   int32(binary.LittleEndian.Uint32(buf[offRecFirstFree:])),
		Capacity:    binary.LittleEndian.Uint64(buf[offRecCapacity:]),
		SlotSize:    binary.LittleEndian.Uint32(buf[offRecSlotSize:]),
		BucketCount: binary.LittleEndian.Uint64(buf[offRecBucketCount:]),
		PKeyLen:     binary.LittleEndian.Uint32(buf[offRecPKeyLen:]),
		SKeyLen:     binary.LittleEndian.Uint32(buf[offRecSKeyLen:]),
		LockEnabled: binary.LittleEndian.Uint32(buf[offRecLockEnabled:]) != 0,
	}, true
}

func setFirstFree(data []byte, v int32) {
	binary.LittleEndian.PutUint32(data[offRecFirstFree:], uint32(v))
}

func getFirstFree(data []byte) int32 {
	return int32(binary.LittleEndian.Uint32(data[offRecFirstFree:]))
}

// recordSlot is a lightweight accessor over one slot's bytes.
type recordSlot []byte

func slotAt(data []byte, pkeyLen, skeyLen, recordSize int, idx int32) recordSlot {
	sz := slotSize(pkeyLen, skeyLen, recordSize)
	off := recordsHeaderSize + int(idx)*sz

	return recordSlot(data[off : off+sz])
}

func (s recordSlot) occupied() bool     { return s[0] != 0 }
func (s recordSlot) setOccupied(v bool) { boolToByte(s, v) }
func (s recordSlot) nextFree() int32    { return int32(binary.LittleEndian.Uint32(s[4:8])) }
func (s recordSlot) setNextFree(v int32) {
	binary.LittleEndian.PutUint32(s[4:8], uint32(v))
}

func (s recordSlot) primaryKey(pkeyLen int) []byte {
	return s[slotMetaSize : slotMetaSize+pkeyLen]
}

func (s recordSlot) secondaryKey(pkeyLen, skeyLen int) []byte {
	start := slotMetaSize + pkeyLen
	return s[start : start+skeyLen]
}

func (s recordSlot) payload(pkeyLen, skeyLen, recordSize int) []byte {
	start := slotMetaSize + pkeyLen + skeyLen
	return s[start : start+recordSize]
}

func boolToByte(s recordSlot, v bool) {
	if v {
		s[0] = 1
	} else {
		s[0] = 0
	}
}
