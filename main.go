package main

import (
	"os"

	"github.com/GoldenFealla/GaplessPlayerGo/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(-1)
	}
}
