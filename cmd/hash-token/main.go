package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run cmd/hash-token/main.go <api-token>")
		fmt.Println("Example: go run cmd/hash-token/main.go \"local-dev-token-12345\"")
		os.Exit(1)
	}

	token := os.Args[1]
	if len(token) < 12 {
		fmt.Fprintln(os.Stderr, "Token must be at least 12 characters")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(token), 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Token hashed successfully!\n\n")
	fmt.Printf("Add this to the sandbox environment:\n")
	fmt.Printf("SANDBOX_TOKEN_HASH=%s\n", hash)
	fmt.Printf("\nAnd this to the storefront environment:\n")
	fmt.Printf("COMMERCE_API_TOKEN=%s\n", token)
	fmt.Printf("\n⚠️  IMPORTANT: Only the hash is stored by the sandbox. Keep the token itself private.\n")
}
