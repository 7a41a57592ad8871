package main

import (
	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for OPENAI_API_KEY and friends.
	_ = godotenv.Load()

	Execute()
}
