package testutil

import (
	"romba-go/internal/encryption"
	"romba-go/internal/romba"
)

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() romba.Encryptor {
	return encryption.NewTestEncryptor()
}
