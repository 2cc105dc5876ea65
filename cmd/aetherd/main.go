package main

import (
	"github.com/joho/godotenv"

	"aether-vault/internal/cli"
)

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()
	cli.Execute()
}
