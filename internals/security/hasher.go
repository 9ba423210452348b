package security

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/alexedwards/argon2id"
)

const verificationCodeDigits = 6

// NewVerificationCode returns a zero-padded numeric code for channel
// verification, generated from crypto/rand.
func NewVerificationCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < verificationCodeDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", verificationCodeDigits, n), nil
}

// HashCode hashes a verification code for at-rest storage.
func HashCode(code string) (string, error) {
	return argon2id.CreateHash(code, argon2id.DefaultParams)
}

func CompareCode(code, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(code, hash)
}
