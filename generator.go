package certgen

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-acme/lego/v4/certcrypto"
)

const outputDirMode os.FileMode = 0o755

// Generator builds and writes every certificate of a Spec, in order.
type Generator struct {
	config  Config
	builder *Builder
	writer  *FileWriter
	history Writer
	logger  *slog.Logger
}

type GeneratorOption func(g *Generator)

// WithHistory records every generated certificate in w.
func WithHistory(w Writer) GeneratorOption {
	return func(g *Generator) {
		g.history = w
	}
}

// WithBuilder replaces the default crypto/rand backed builder.
func WithBuilder(b *Builder) GeneratorOption {
	return func(g *Generator) {
		g.builder = b
	}
}

// NewGenerator creates a generator writing into cfg.OutputDir.
func NewGenerator(cfg Config, logger *slog.Logger, opts ...GeneratorOption) *Generator {
	if logger == nil {
		panic("NewGenerator: received nil logger")
	}
	g := &Generator{
		config: cfg,
		writer: NewFileWriter(cfg.OutputDir, cfg.CertEncoding, logger),
		logger: logger.With("component", "generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.builder == nil {
		g.builder = NewBuilder(logger)
	}
	return g
}

// Generate loads the configured specification document, or DefaultSpec when
// none is configured, and runs it. A document that does not parse aborts
// before the output directory is touched.
func (g *Generator) Generate(ctx context.Context) error {
	spec := DefaultSpec()
	if g.config.SpecFile != "" {
		g.logger.Info("Loading specification...", "path", g.config.SpecFile)
		var err error
		if spec, err = LoadSpec(g.config.SpecFile); err != nil {
			return err
		}
	} else {
		g.logger.Info("No specification configured, generating a self-signed certificate", "common_name", DefaultCommonName)
	}
	return g.Run(ctx, spec)
}

// Run creates the output directory and processes the records of spec. The
// first failing record aborts the run; files already written stay on disk.
func (g *Generator) Run(ctx context.Context, spec *Spec) error {
	if err := os.MkdirAll(g.config.OutputDir, outputDirMode); err != nil {
		return fmt.Errorf("%w: failed to create output directory %s: %w", ErrIO, g.config.OutputDir, err)
	}

	// Bare mode omits the extended key usage.
	g.builder.ExtKeyUsage = !spec.Bare()

	seen := make(map[string]int, len(spec.Certs))
	for i, rec := range spec.Certs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if prev, ok := seen[rec.Subject.Common]; ok {
			g.logger.Warn("Common name repeats an earlier record, its files will be overwritten",
				"common_name", rec.Subject.Common, "index", i, "previous_index", prev)
		}
		seen[rec.Subject.Common] = i

		if _, err := g.generate(rec, spec.Bare()); err != nil {
			return fmt.Errorf("certs[%d] %s: %w", i, rec.Subject.FullName(), err)
		}
	}

	g.logger.Info("Done!", "certificates", len(spec.Certs), "dir", g.config.OutputDir)
	return nil
}

func (g *Generator) generate(rec Certificate, bare bool) (Filenames, error) {
	g.logger.Info("Generating certificate", "subject", rec.Subject.FullName())

	issued, err := g.builder.Build(rec)
	if err != nil {
		return Filenames{}, err
	}

	paths, err := g.writer.Write(NamesFor(rec.Subject.Common, bare, g.config.CertEncoding), issued)
	if err != nil {
		return Filenames{}, err
	}

	if g.history != nil {
		if err := g.history.AddCert(historyRecord(rec, issued, paths)); err != nil {
			return Filenames{}, fmt.Errorf("%w: failed to record certificate history: %w", ErrIO, err)
		}
	}

	g.logger.Info("Certificate generated",
		"subject", rec.Subject.FullName(),
		"serial", issued.Certificate.SerialNumber.Text(16),
		"not_after", issued.Certificate.NotAfter,
		"cert", paths.Cert,
		"key", paths.Key,
	)
	return paths, nil
}

func historyRecord(rec Certificate, is *Issued, paths Filenames) Cert {
	return Cert{
		Identifier:     rec.Subject.Common,
		Subject:        rec.Subject.FullName(),
		Serial:         is.Certificate.SerialNumber.Text(16),
		CertFile:       paths.Cert,
		KeyFile:        paths.Key,
		CertificatePEM: string(certcrypto.PEMEncode(certcrypto.DERCertificateBytes(is.DER))),
		IssuedAt:       is.Certificate.NotBefore,
		ExpiresAt:      is.Certificate.NotAfter,
	}
}
