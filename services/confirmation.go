package services

import (
	"crypto/rand"
	"fmt"
	"io"
)

const (
	confirmationPrefix   = "NY"
	confirmationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	confirmationLength   = 6
)

// NewConfirmationNumber returns "NY" followed by six uppercase alphanumerics.
func NewConfirmationNumber() (string, error) {
	code, err := randomString(rand.Reader, confirmationAlphabet, confirmationLength)
	if err != nil {
		return "", fmt.Errorf("generating confirmation number: %w", err)
	}
	return confirmationPrefix + code, nil
}

// randomString draws n characters from alphabet, rejecting biased bytes.
func randomString(r io.Reader, alphabet string, n int) (string, error) {
	limit := 256 - (256 % len(alphabet))
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)

	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
