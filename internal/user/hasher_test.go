package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	t.Run("Should_verify_own_digest", func(t *testing.T) {
		digest, err := h.Hash("s3cret")
		require.NoError(t, err)
		assert.NotEqual(t, "s3cret", digest)
		assert.True(t, h.Verify(digest, "s3cret"))
		assert.False(t, h.Verify(digest, "S3cret"))
	})

	t.Run("Should_salt_equal_passwords", func(t *testing.T) {
		a, err := h.Hash("same")
		require.NoError(t, err)
		b, err := h.Hash("same")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestSha256Hasher(t *testing.T) {
	h := Sha256Hasher{}

	t.Run("Should_match_reference_digest", func(t *testing.T) {
		digest, err := h.Hash("password")
		require.NoError(t, err)
		assert.Equal(t, "XohImNooBHFR0OVvjcYpJ3NgPQ1qq73WKhHvch0VQtg=", digest)
	})

	t.Run("Should_be_deterministic_and_verify", func(t *testing.T) {
		a, _ := h.Hash("same")
		b, _ := h.Hash("same")
		assert.Equal(t, a, b)
		assert.True(t, h.Verify(a, "same"))
		assert.False(t, h.Verify(a, "other"))
	})
}

func TestHasherFromEnv(t *testing.T) {
	t.Run("Should_default_to_bcrypt", func(t *testing.T) {
		t.Setenv("PASSWORD_HASHER", "")
		t.Setenv("BCRYPT_COST", "5")
		assert.Equal(t, BcryptHasher{Cost: 5}, HasherFromEnv())
	})

	t.Run("Should_select_sha256", func(t *testing.T) {
		t.Setenv("PASSWORD_HASHER", "SHA256")
		assert.Equal(t, Sha256Hasher{}, HasherFromEnv())
	})
}
