package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// promptCredentialsSecret reads the credentials secret from the terminal
// with input echo disabled, so the pairing bearer token never lands in
// shell history or process listings.
func promptCredentialsSecret() (string, error) {
	fmt.Fprint(os.Stderr, "Credentials secret: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
