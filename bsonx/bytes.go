package bsonx

import "encoding/binary"

// le32 reads a little-endian uint32 from the first 4 bytes of b.
func le32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// putLE32 writes v as a little-endian uint32 into the first 4 bytes of b.
func putLE32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// le64 reads a little-endian uint64 from the first 8 bytes of b.
func le64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}

// putLE64 writes v as a little-endian uint64 into the first 8 bytes of b.
func putLE64(b []byte, v uint64) {
	binary.LittleEndian.PutUint64(b, v)
}

// be32 reads a big-endian uint32 from the first 4 bytes of b.
func be32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}
