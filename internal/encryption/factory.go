package encryption

import (
	"fmt"

	"romba-go/internal/config"
	"romba-go/internal/romba"
)

// NewEncryptorFromConfig returns the snapshot encryptor named by cfg.Type.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (romba.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
