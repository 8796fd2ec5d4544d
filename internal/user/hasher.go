package user

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher turns a password into a stored digest and checks a
// password against one.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher is the default, salted hasher.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Sha256Hasher produces base64(SHA-256(pw)). It is unsalted: equal
// passwords give equal digests. Kept for databases populated by the
// earlier service.
type Sha256Hasher struct{}

func (Sha256Hasher) Hash(pw string) (string, error) {
	sum := sha256.Sum256([]byte(pw))
	return base64.StdEncoding.EncodeToString(sum[:]), nil
}

func (h Sha256Hasher) Verify(hash, pw string) bool {
	want, _ := h.Hash(pw)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(want)) == 1
}

// HasherFromEnv picks the hasher named by PASSWORD_HASHER (bcrypt or
// sha256). BCRYPT_COST overrides the bcrypt cost.
func HasherFromEnv() PasswordHasher {
	if strings.EqualFold(os.Getenv("PASSWORD_HASHER"), "sha256") {
		return Sha256Hasher{}
	}
	cost := 12
	if v, err := strconv.Atoi(os.Getenv("BCRYPT_COST")); err == nil && v >= bcrypt.MinCost && v <= bcrypt.MaxCost {
		cost = v
	}
	return BcryptHasher{Cost: cost}
}
