package main

import (
	"github.com/joho/godotenv"
	"github.com/park285/tessu-bridge/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
