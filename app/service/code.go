package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const codeSpace = 1_000_000

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// CodeGenerator draws a candidate transfer code.
type CodeGenerator func() (string, error)

// RandomCode returns six uniformly distributed decimal digits.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func IsValidCode(code string) bool {
	return codePattern.MatchString(code)
}
