package crypto

import (
	"crypto"
	"errors"
	"time"
)

// KeyType represents the type of cryptographic key. A node identity holds
// exactly one of each: Ed25519 for signing, X25519 for key agreement.
type KeyType string

const (
	KeyTypeEd25519 KeyType = "Ed25519"
	KeyTypeX25519  KeyType = "X25519"
)

// KeyPair represents a cryptographic key pair.
type KeyPair interface {
	// PublicKey returns the public key
	PublicKey() crypto.PublicKey

	// PrivateKey returns the private key
	PrivateKey() crypto.PrivateKey

	// Type returns the key type
	Type() KeyType

	// Sign signs the given message. X25519 key pairs return ErrSignNotSupported.
	Sign(message []byte) ([]byte, error)

	// Verify verifies the signature. X25519 key pairs return ErrVerifyNotSupported.
	Verify(message, signature []byte) error

	// ID returns a unique identifier for this key pair
	ID() string
}

// KeyStorage provides secure storage for keys.
type KeyStorage interface {
	// Store stores a key pair with the given ID
	Store(id string, keyPair KeyPair) error

	// Load loads a key pair by ID
	Load(id string) (KeyPair, error)

	// Delete removes a key pair by ID
	Delete(id string) error

	// List returns all stored key IDs
	List() ([]string, error)

	// Exists checks if a key exists
	Exists(id string) bool
}

// KeyRotationConfig represents configuration for key rotation.
type KeyRotationConfig struct {
	// RotationInterval is the time between scheduled rotations.
	RotationInterval time.Duration

	// MaxKeyAge is the maximum age for a key before rotation is forced.
	MaxKeyAge time.Duration

	// KeepOldKeys determines if old keys should be kept in storage
	// under a derived ID instead of discarded.
	KeepOldKeys bool
}

// KeyRotator handles key rotation operations.
type KeyRotator interface {
	// Rotate rotates the key for the given ID
	Rotate(id string) (KeyPair, error)

	// SetRotationConfig sets the rotation configuration
	SetRotationConfig(config KeyRotationConfig)

	// GetRotationHistory returns the rotation history for a key, newest first
	GetRotationHistory(id string) ([]KeyRotationEvent, error)
}

// KeyRotationEvent represents a key rotation event.
type KeyRotationEvent struct {
	Timestamp time.Time
	OldKeyID  string
	NewKeyID  string
	Reason    string
}

// Common errors
var (
	ErrKeyNotFound        = errors.New("key not found")
	ErrInvalidKeyType     = errors.New("invalid key type")
	ErrKeyExists          = errors.New("key already exists")
	ErrInvalidSignature   = errors.New("invalid signature")
	ErrSignNotSupported   = errors.New("key type does not support signing")
	ErrVerifyNotSupported = errors.New("key type does not support signature verification")
)
