package romba

import "io"

// Encryptor encrypts index snapshots. Encryption only needs the public key;
// decryption needs the private key unlocked with a passphrase.
type Encryptor interface {
	// Setup generates a key pair, writes the public key in plaintext and the
	// private key encrypted with passphrase.
	Setup(passphrase string) error

	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key. It fails on a wrong passphrase.
	Unlock(passphrase string) (DecryptionContext, error)

	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory for one restore.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
