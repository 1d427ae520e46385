package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/caasmo/certgen"
)

func generateBlueprintSpec() certgen.Spec {
	return certgen.Spec{
		Certs: []certgen.Certificate{
			{
				Subject: certgen.Subject{
					Common:   "test.local",
					Country:  "US",
					Org:      "Acme",
					OrgUnit:  "Engineering",
					State:    "California",
					Locality: "San Francisco",
					Email:    "admin@test.local",
				},
				Validity: certgen.Validity{Days: 30},
				Key:      certgen.Key{Bits: 2048},
			},
			{
				Subject: certgen.Subject{
					Common:  "client.test.local",
					Country: "US",
					Org:     "Acme",
				},
				Validity: certgen.Validity{Days: 365},
				Key:      certgen.Key{Bits: 4096},
			},
		},
	}
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	outputFileFlag := flag.String("output", "certs.blueprint.toml", "Output file path for the blueprint specification (.toml, .yaml or .yml)")
	flag.StringVar(outputFileFlag, "o", "certs.blueprint.toml", "Output file path (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Generates a blueprint certificate specification with example values.\n")
		fmt.Fprintf(os.Stderr, "The format follows the output file extension.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	logger.Info("Generating blueprint specification...")
	blueprint := generateBlueprintSpec()

	format := certgen.FormatFromPath(*outputFileFlag)
	logger.Info("Marshalling specification...", "format", format)

	var (
		data []byte
		err  error
	)
	switch format {
	case certgen.FormatYAML:
		data, err = yaml.Marshal(blueprint)
	default:
		data, err = toml.Marshal(blueprint)
	}
	if err != nil {
		logger.Error("Failed to marshal blueprint specification", "format", format, "error", err)
		os.Exit(1)
	}

	// The blueprint must load back through the same path certgen uses.
	if _, err := certgen.ParseSpec(data, format); err != nil {
		logger.Error("Generated blueprint does not parse", "error", err)
		os.Exit(1)
	}

	logger.Info("Writing blueprint specification", "path", *outputFileFlag)
	err = os.WriteFile(*outputFileFlag, data, 0644)
	if err != nil {
		logger.Error("Failed to write blueprint specification",
			"path", *outputFileFlag,
			"error", err)
		os.Exit(1)
	}

	logger.Info("Blueprint specification generated successfully", "path", *outputFileFlag)
}
