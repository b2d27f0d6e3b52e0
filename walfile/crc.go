package walfile

import "hash/crc32"

// crc computes the CRC32 (IEEE polynomial) over buf, the same checksum
// the teacher's WAL uses for its records.
func crc(buf []byte) uint32 {
	return crc32.ChecksumIEEE(buf)
}
