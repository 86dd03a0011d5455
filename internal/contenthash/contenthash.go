// Package contenthash wraps the teacher's highwayhash-based content
// hashing utility for use as an incremental re-analysis skip check:
// internal/source records each discovered file's hash so a driver can
// avoid re-walking unchanged files across repeated runs.
package contenthash

import "github.com/minio/highwayhash"

// key is a fixed, non-secret 32-byte key: content hashing here is for
// change detection, not integrity verification, so a static key is
// sufficient and keeps hashes stable across process runs.
var key = []byte("0123456789ABCDEF0123456789ABCDEF")

// Hash returns the HighwayHash-64 digest of data.
func Hash(data []byte) (uint64, error) {
	hash, err := highwayhash.New64(key)
	if err != nil {
		return 0, err
	}
	_, err = hash.Write(data)
	return hash.Sum64(), err
}
