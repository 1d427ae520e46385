package certgen

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-acme/lego/v4/certcrypto"
)

// Encoding selects how certificate files are written. Private keys are
// always PEM.
type Encoding string

const (
	EncodingPEM Encoding = "pem"
	EncodingDER Encoding = "der"
)

// File names used by the bare self-signed mode.
const (
	BareKeyFile     = "pkey.pem"
	BareCertFilePEM = "cert.pem"
	BareCertFileDER = "cert.der"
)

const (
	keyFileMode  os.FileMode = 0o600
	certFileMode os.FileMode = 0o644
)

// Filenames names the key and certificate files of one record.
type Filenames struct {
	Key  string
	Cert string
}

// NamesFor derives file names from the common name: <cn>.key and <cn>.crt,
// or pkey.pem and cert.pem (cert.der) in bare mode.
func NamesFor(commonName string, bare bool, enc Encoding) Filenames {
	if bare {
		if enc == EncodingDER {
			return Filenames{Key: BareKeyFile, Cert: BareCertFileDER}
		}
		return Filenames{Key: BareKeyFile, Cert: BareCertFilePEM}
	}
	return Filenames{Key: commonName + ".key", Cert: commonName + ".crt"}
}

// FileWriter writes key and certificate files into Dir. Existing regular
// files are overwritten.
type FileWriter struct {
	Dir      string
	Encoding Encoding

	logger *slog.Logger
}

func NewFileWriter(dir string, enc Encoding, logger *slog.Logger) *FileWriter {
	if logger == nil {
		panic("NewFileWriter: received nil logger")
	}
	return &FileWriter{Dir: dir, Encoding: enc, logger: logger.With("component", "writer")}
}

// Write stores the PKCS#8 private key and the certificate of is under names
// and returns the full paths written.
func (w *FileWriter) Write(names Filenames, is *Issued) (Filenames, error) {
	paths := Filenames{}
	var err error
	if paths.Key, err = w.path(names.Key); err != nil {
		return Filenames{}, err
	}
	if paths.Cert, err = w.path(names.Cert); err != nil {
		return Filenames{}, err
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(is.PrivateKey)
	if err != nil {
		return Filenames{}, fmt.Errorf("%w: failed to encode private key: %w", ErrCrypto, err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	var certData []byte
	switch w.Encoding {
	case EncodingDER:
		certData = is.DER
	case EncodingPEM, "":
		certData = certcrypto.PEMEncode(certcrypto.DERCertificateBytes(is.DER))
	default:
		return Filenames{}, fmt.Errorf("%w: unsupported certificate encoding %q", ErrConfig, w.Encoding)
	}

	w.logger.Debug("Saving private key", "path", paths.Key)
	if err := writeFile(paths.Key, keyPEM, keyFileMode); err != nil {
		return Filenames{}, err
	}

	w.logger.Debug("Saving certificate", "path", paths.Cert, "encoding", w.encoding())
	if err := writeFile(paths.Cert, certData, certFileMode); err != nil {
		return Filenames{}, err
	}

	return paths, nil
}

func (w *FileWriter) encoding() Encoding {
	if w.Encoding == "" {
		return EncodingPEM
	}
	return w.Encoding
}

// path joins name to Dir. name must be a plain file name so that a common
// name such as "../x" cannot escape the output directory.
func (w *FileWriter) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid output file name %q", ErrIO, name)
	}
	return filepath.Join(w.Dir, name), nil
}

func writeFile(path string, data []byte, perm os.FileMode) (err error) {
	if fi, statErr := os.Lstat(path); statErr == nil && !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s exists and is not a regular file", ErrIO, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", ErrIO, path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: failed to close %s: %w", ErrIO, path, cerr)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrIO, path, err)
	}
	return nil
}

// LoadKeyPair reads back a certificate (PEM or DER) and a PEM private key.
func LoadKeyPair(certPath, keyPath string) (*x509.Certificate, crypto.Signer, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, certPath, err)
	}

	var cert *x509.Certificate
	if bytes.HasPrefix(bytes.TrimSpace(certData), []byte("-----BEGIN")) {
		cert, err = certcrypto.ParsePEMCertificate(certData)
	} else {
		cert, err = x509.ParseCertificate(certData)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse certificate %s: %w", ErrCrypto, certPath, err)
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to read %s: %w", ErrIO, keyPath, err)
	}
	key, err := certcrypto.ParsePEMPrivateKey(keyData)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to parse private key %s: %w", ErrCrypto, keyPath, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("%w: private key %s of type %T cannot sign", ErrCrypto, keyPath, key)
	}

	return cert, signer, nil
}
