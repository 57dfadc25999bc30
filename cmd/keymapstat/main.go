package main

import (
	"fmt"
	"io"
	"os"

	"github.com/homier/keymap"
	"github.com/homier/keymap/hashtable"
	"github.com/homier/keymap/internal/config"
	"github.com/homier/keymap/internal/loader"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Set up zerolog to use pretty printing
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out: os.Stderr,
	})

	// Load the tool configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("could not load the configuration")
	}
	if cfg.IsEnvProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if len(os.Args) > 1 {
		cfg.Input = os.Args[1]
	}
	log.Debug().Str("config", fmt.Sprintf("%+v", cfg)).Msg("")

	opts := []keymap.Option{
		keymap.WithCapacity(cfg.Capacity),
		keymap.WithLogger(log.Logger),
	}
	if cfg.MemoryLimit > 0 {
		opts = append(opts, keymap.WithAllocPolicy(hashtable.NewLimitAllocPolicy(uintptr(cfg.MemoryLimit))))
	}

	keys := loader.New(keymap.NewStringMap[int](opts...), log.Logger)

	log.Info().Str("input", cfg.Input).Msg("loading keys...")
	if err := withInput(cfg.Input, keys.Load); err != nil {
		log.Fatal().Err(err).Msg("could not load the keys")
	}

	if cfg.Remove != "" {
		log.Info().Str("input", cfg.Remove).Msg("removing keys...")
		if err := withInput(cfg.Remove, keys.Remove); err != nil {
			log.Fatal().Err(err).Msg("could not remove the keys")
		}
	}

	data, err := keys.Report().JSON()
	if err != nil {
		log.Fatal().Err(err).Msg("could not encode the report")
	}
	if _, err := os.Stdout.Write(append(data, '\n')); err != nil {
		log.Fatal().Err(err).Msg("could not write the report")
	}
}

func withInput(path string, fn func(io.Reader) error) error {
	if path == "-" {
		return fn(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return fn(file)
}
