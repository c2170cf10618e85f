package main

import (
	"fmt"
	"os"

	"portfolio-backend/pkg/csrf"
)

// Prints a fresh CSRF_SECRET suitable for a production .env file.
func main() {
	secret, err := csrf.RandomHex(csrf.NonceLength)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Printf("CSRF_SECRET=%s\n", secret)
}
