package utils // package utils provides hashing helpers shared by the scan log and reservations

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// HashClientIP returns the keyed BLAKE2b-256 digest of ip as hex.  When
// key is empty the address is returned unchanged so deployments without a
// configured key keep the raw value.
func HashClientIP(key, ip string) string {
	if key == "" || ip == "" {
		return ip
	}
	k := []byte(key)
	if len(k) > blake2b.Size {
		sum := blake2b.Sum256(k)
		k = sum[:]
	}
	h, err := blake2b.New256(k)
	if err != nil {
		return ip
	}
	h.Write([]byte(ip))
	return hex.EncodeToString(h.Sum(nil))
}

// HashToken returns the unkeyed BLAKE2b-256 digest of a verification token
// as hex.  Only the digest is stored; it backs the single-use index.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
