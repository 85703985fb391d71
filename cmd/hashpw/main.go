// Package main prints a bcrypt hash for ADMIN_PASSWORD_HASH. The password
// is read from the first line of stdin so it never lands in shell history.
//
//	echo -n 'correct horse' | go run ./cmd/hashpw
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"valor/internal/auth"
)

const minPasswordLength = 12

func main() {
	hash, err := hashFrom(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hashpw: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}

func hashFrom(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if len(pw) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return auth.HashPassword(pw)
}
