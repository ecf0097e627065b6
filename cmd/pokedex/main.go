package main

import (
	"log/slog"
	"os"

	"github.com/pokedexos/dexcache/cmd/pokedex/commands"
)

func main() {
	// Structured text logs on stderr so command output stays readable on stdout
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	commands.Execute(level)
}
