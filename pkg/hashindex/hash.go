package hashindex

import "bytes"

// djb2 hashes key for bucket placement: for text keys, only the
// bytes up to the first NUL participate; for binary keys, all keyLength
// bytes do.
func djb2(key []byte, isText bool) uint64 {
	if isText {
		if i := bytes.IndexByte(key, 0); i >= 0 {
			key = key[:i]
		}
	}

	hash := uint64(5381)
	for _, b := range key {
		hash = hash*33 + uint64(b)
	}

	return hash
}

// keysEqual compares stored slot key bytes against a lookup key. Binary keys
// compare the full fixed length (memcmp); text keys compare up to the
// requested key's logical length, as strncmp would with a NUL-terminated
// lookup key.
func keysEqual(stored, lookup []byte, isText bool) bool {
	if !isText {
		return bytes.Equal(stored, lookup)
	}

	storedLen := len(stored)
	if i := bytes.IndexByte(stored, 0); i >= 0 {
		storedLen = i
	}

	lookupLen := len(lookup)
	if i := bytes.IndexByte(lookup, 0); i >= 0 {
		lookupLen = i
	}

	return storedLen == lookupLen && bytes.Equal(stored[:storedLen], lookup[:lookupLen])
}
