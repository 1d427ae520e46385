package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/caasmo/certgen"
	certgen_db "github.com/caasmo/certgen/zombiezen"
)

func main() {
	envFile := flag.String("env", certgen.DefaultEnvFile, "path to the environment file (empty to skip)")
	specFile := flag.String("spec", "", "path to the TOML or YAML specification document (default: localhost self-signed)")
	outputDir := flag.String("out", "", "output directory (default: "+certgen.DefaultOutputDir+")")
	encoding := flag.String("encoding", "", "certificate encoding, pem or der (default: pem)")
	historyDB := flag.String("history-db", "", "SQLite file recording issued certificates")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-env <file>] [-spec <file>] [-out <dir>] [-encoding pem|der] [-history-db <file>]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates self-signed certificates and private keys from a specification document.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(2)
	}

	// --- Configuration Loading ---
	cfg, err := certgen.LoadConfig(
		certgen.WithEnvFile(*envFile),
		certgen.WithOverrides(certgen.Config{
			OutputDir:    *outputDir,
			SpecFile:     *specFile,
			CertEncoding: certgen.Encoding(*encoding),
			HistoryDB:    *historyDB,
		}),
	)
	if err != nil {
		slog.Error("Failed to load configuration", "env_file", *envFile, "error", err)
		os.Exit(1)
	}

	// --- Setup Logging ---
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	logger.Debug("Using Go runtime", "version", runtime.Version())
	logger.Debug("Config loaded",
		"output_dir", cfg.OutputDir,
		"spec_file", cfg.SpecFile,
		"cert_encoding", cfg.CertEncoding,
		"history_db", cfg.HistoryDB,
	)

	// --- Generation ---
	if err := generate(cfg, logger); err != nil {
		logger.Error("Certificate generation failed", "error", err)
		os.Exit(1)
	}
}

// generate owns the history pool so that it is closed before main exits.
func generate(cfg certgen.Config, logger *slog.Logger) error {
	var opts []certgen.GeneratorOption

	if cfg.HistoryDB != "" {
		logger.Info("Opening history database", "path", cfg.HistoryDB)
		pool, err := certgen_db.NewPool(cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer func() {
			if err := pool.Close(); err != nil {
				logger.Error("Failed to close history database", "error", err)
			}
		}()

		db, err := certgen_db.New(pool)
		if err != nil {
			return err
		}
		opts = append(opts, certgen.WithHistory(db))
	}

	return certgen.NewGenerator(cfg, logger, opts...).Generate(context.Background())
}
