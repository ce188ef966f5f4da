package hasher

import (
	"golang.org/x/crypto/bcrypt"
)

const cost = 10

// HashToken hashes an API token so the plaintext need not be kept.
func HashToken(token []byte) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword(token, cost)
	return string(bytes), err
}

func TokenCorrect(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
