package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/caasmo/certgen"
)

func generateBlueprintConfig() certgen.Config {
	cfg := certgen.DefaultConfig()
	cfg.SpecFile = "certs.toml"
	cfg.HistoryDB = "certgen.db"
	return cfg
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	outputFileFlag := flag.String("output", certgen.DefaultEnvFile, "Output file path for the blueprint environment file")
	flag.StringVar(outputFileFlag, "o", certgen.DefaultEnvFile, "Output file path (shorthand)")
	force := flag.Bool("force", false, "Overwrite an existing file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates a blueprint environment file for certgen with default values.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if _, err := os.Stat(*outputFileFlag); err == nil && !*force {
		logger.Error("Output file already exists, use -force to overwrite", "path", *outputFileFlag)
		os.Exit(1)
	}

	logger.Info("Generating blueprint configuration...")
	cfg := generateBlueprintConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("Blueprint configuration is invalid", "error", err)
		os.Exit(1)
	}

	logger.Info("Writing blueprint environment file", "path", *outputFileFlag)
	if err := godotenv.Write(cfg.Env(), *outputFileFlag); err != nil {
		logger.Error("Failed to write blueprint environment file",
			"path", *outputFileFlag,
			"error", err)
		os.Exit(1)
	}

	logger.Info("Blueprint environment file generated successfully", "path", *outputFileFlag)
}
