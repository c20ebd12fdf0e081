package random

import (
	"crypto/rand"
	"math/big"

	"github.com/myrjola/misterio/internal/errors"
)

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Letters returns a cryptographically random string of n ASCII letters.
func Letters(n uint) (string, error) {
	letters := make([]byte, n)
	upper := big.NewInt(int64(len(alphabet)))
	for i := range letters {
		index, err := rand.Int(rand.Reader, upper)
		if err != nil {
			return "", errors.Wrap(err, "read random index")
		}
		letters[i] = alphabet[index.Int64()]
	}
	return string(letters), nil
}

// ID returns prefix followed by n random letters, for example "gen-xYzAbc".
func ID(prefix string, n uint) (string, error) {
	letters, err := Letters(n)
	if err != nil {
		return "", err
	}
	return prefix + letters, nil
}
