package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/caasmo/certgen"
	certgen_db "github.com/caasmo/certgen/zombiezen"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	dbPathFlag := flag.String("dbpath", "", "Path to the SQLite history database (required)")
	verifyFlag := flag.Bool("verify", false, "Re-read each recorded key pair from disk and check that it matches")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -dbpath <db-file> [-verify]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Lists the certificates recorded by certgen.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *dbPathFlag == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*dbPathFlag, *verifyFlag, logger); err != nil {
		logger.Error("Failed to list certificate history", "db_path", *dbPathFlag, "error", err)
		os.Exit(1)
	}
}

func run(dbPath string, verify bool, logger *slog.Logger) error {
	if _, err := os.Stat(dbPath); err != nil {
		return err
	}

	pool, err := certgen_db.NewReadOnlyPool(dbPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("error closing database pool", "error", err)
		}
	}()

	certs, err := certgen_db.NewReader(pool).ListCerts()
	if err != nil {
		return err
	}
	logger.Info("Loaded certificate history", "count", len(certs))

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSUBJECT\tSERIAL\tISSUED\tEXPIRES\tSTATUS\tCERT")
	failed := 0
	for _, c := range certs {
		status := "valid"
		if now.After(c.ExpiresAt) {
			status = "expired"
		}
		if verify {
			if err := verifyFiles(c); err != nil {
				logger.Warn("Key pair does not verify", "id", c.ID, "subject", c.Subject, "error", err)
				status = "mismatch"
				failed++
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.Subject, c.Serial, certgen.TimeFormat(c.IssuedAt), certgen.TimeFormat(c.ExpiresAt), status, c.CertFile)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d recorded key pairs failed verification", failed)
	}
	return nil
}

// verifyFiles checks that the files on disk still hold the recorded
// certificate and a matching key.
func verifyFiles(c certgen.Cert) error {
	cert, key, err := certgen.LoadKeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return err
	}
	if got := cert.SerialNumber.Text(16); got != c.Serial {
		return fmt.Errorf("serial on disk is %s, history has %s", got, c.Serial)
	}
	return certgen.VerifyKeyPair(cert, key)
}
