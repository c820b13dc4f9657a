// Package adaptive provides authenticated encryption with the algorithm
// picked from the hardware.
//
// AES-256-GCM is used where Go's crypto/aes runs on hardware instructions
// (amd64, arm64), ChaCha20-Poly1305 elsewhere. Keys are either derived
// from a master key with HKDF-SHA256 or from a passphrase with Argon2id:
//
//	key, err := adaptive.DeriveKey(master, "libos profile records")
//	c, err := adaptive.New(key)
//	sealed, err := c.Encrypt(plaintext, aad)
//	plaintext, err := c.Decrypt(sealed, aad)
package adaptive
