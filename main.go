package main

import (
	"os"

	"github.com/NeverMind-orz/identity-kit/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
