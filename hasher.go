package userrepo

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SaltedHash computes the stored credential digest: sha256 over the four
// little-endian bytes of salt followed by the UTF-8 bytes of secret,
// rendered as lowercase hex. It is a pure function of its inputs and is
// used both for passwords and for reset confirmation tokens.
//
// An empty or all-whitespace secret is rejected here as well as in the
// manager's own pre-checks; stored hashes are never derived from blank
// input.
func SaltedHash(salt int32, secret string) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", ErrEmptySecret
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(salt))

	h := sha256.New()
	h.Write(prefix[:])
	h.Write([]byte(secret))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewSalt draws a fresh 32-bit salt from src. The source must be
// cryptographically secure; a statistically-seeded generator produces
// predictable salts and materially weakens the scheme. Pass nil to use
// crypto/rand.
func NewSalt(src io.Reader) (int32, error) {
	if src == nil {
		src = rand.Reader
	}

	var buf [4]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate salt")
	}

	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// NewConfirmationToken generates the plaintext reset token handed back to
// the caller for out-of-band delivery: two random 64-bit values rendered
// as concatenated signed decimal text. Pass nil to use crypto/rand.
func NewConfirmationToken(src io.Reader) (string, error) {
	if src == nil {
		src = rand.Reader
	}

	var buf [16]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate confirmation token")
	}

	a := int64(binary.LittleEndian.Uint64(buf[0:8]))
	b := int64(binary.LittleEndian.Uint64(buf[8:16]))

	return strconv.FormatInt(a, 10) + strconv.FormatInt(b, 10), nil
}

// RandomThrowawayPassword returns a credential for users created through
// profile projection. Such users authenticate through an external
// identity source, so the password only needs to be unguessable.
func RandomThrowawayPassword() string {
	return uuid.NewString()
}
