package memberauth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns plaintext passwords into storable secrets and checks them.
//
// Hash must salt every call so two hashes of the same plaintext differ.
// Verify returns (false, nil) on a mismatch and ErrInvalidCredentialFormat
// when hashed cannot be parsed; comparisons run in constant time.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) (bool, error)
}

// Supported hasher names for NewHasher
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// NewHasher returns the hasher registered under name with default parameters.
// An empty name selects bcrypt.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HasherBcrypt:
		return NewBcryptHasher(bcrypt.DefaultCost), nil
	case HasherArgon2id:
		return NewArgon2Hasher(), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q", name)
	}
}

// BcryptHasher hashes with bcrypt. The salt and cost live inside the hash.
//
// bcrypt reads at most 72 bytes, so the plaintext is first reduced to the
// base64 SHA-256 digest (44 bytes). Passwords of any length hash and verify,
// and two long passwords sharing a 72-byte prefix still differ.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(plaintext), h.Cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (h *BcryptHasher) Verify(plaintext, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), bcryptInput(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, WrapAuthError(ErrCodeInvalidCredentialFormat, "not a bcrypt hash", err)
	}
}

func bcryptInput(plaintext string) []byte {
	sum := sha256.Sum256([]byte(plaintext))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}

// Argon2Hasher hashes with argon2id and encodes results in PHC string format:
//
//	$argon2id$v=19$m=<memory KiB>,t=<iterations>,p=<threads>$<salt>$<hash>
//
// Verification reads the parameters from the stored string, so changing the
// fields below only affects new hashes.
type Argon2Hasher struct {
	Memory     uint32
	Iterations uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

func NewArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{
		Memory:     64 * 1024,
		Iterations: 1,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

func (h *Argon2Hasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, h.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.Iterations, h.Memory, h.Threads, h.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.Memory, h.Iterations, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (h *Argon2Hasher) Verify(plaintext, hashed string) (bool, error) {
	params, salt, key, err := decodeArgon2Hash(hashed)
	if err != nil {
		return false, WrapAuthError(ErrCodeInvalidCredentialFormat, "not an argon2id hash", err)
	}
	other := argon2.IDKey([]byte(plaintext), salt, params.Iterations, params.Memory, params.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

func decodeArgon2Hash(hashed string) (params Argon2Hasher, salt, key []byte, err error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(hashed, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, errors.New("unexpected hash layout")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return params, nil, nil, fmt.Errorf("bad version: %w", err)
	}
	if version != argon2.Version {
		return params, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Threads); err != nil {
		return params, nil, nil, fmt.Errorf("bad parameters: %w", err)
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Threads == 0 {
		return params, nil, nil, errors.New("zero argon2 parameter")
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return params, nil, nil, fmt.Errorf("bad salt: %w", err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return params, nil, nil, fmt.Errorf("bad key: %w", err)
	}
	if len(key) == 0 {
		return params, nil, nil, errors.New("empty key")
	}
	return params, salt, key, nil
}
