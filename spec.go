package certgen

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a specification document.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Defaults for the bare self-signed mode.
const (
	DefaultCommonName   = "localhost"
	DefaultValidityDays = 365
	DefaultKeyBits      = 4096
)

// Spec is a loaded specification document. It is not modified after loading.
type Spec struct {
	Certs []Certificate `toml:"certs" yaml:"certs"`

	// bare marks the built-in one-record spec used when no document is given.
	bare bool
}

// Certificate describes one certificate to produce.
type Certificate struct {
	Subject  Subject  `toml:"subject" yaml:"subject"`
	Validity Validity `toml:"validity" yaml:"validity"`
	Key      Key      `toml:"key" yaml:"key"`
}

// Subject holds the identity fields. Empty optional fields are omitted from
// the distinguished name.
type Subject struct {
	Common   string `toml:"common" yaml:"common"`
	Country  string `toml:"country" yaml:"country"`
	Org      string `toml:"org" yaml:"org"`
	OrgUnit  string `toml:"org_unit,omitempty" yaml:"org_unit,omitempty"`
	State    string `toml:"state,omitempty" yaml:"state,omitempty"`
	Locality string `toml:"locality,omitempty" yaml:"locality,omitempty"`
	Email    string `toml:"email,omitempty" yaml:"email,omitempty"`
}

type Validity struct {
	Days int `toml:"days" yaml:"days"`
}

type Key struct {
	Bits int `toml:"bits" yaml:"bits"`
}

// Bare reports whether s is the built-in self-signed spec.
func (s *Spec) Bare() bool { return s.bare }

// DefaultSpec returns the one-record spec used when no document is configured:
// a localhost certificate without extended key usage, written as pkey.pem and
// cert.pem.
func DefaultSpec() *Spec {
	return &Spec{
		Certs: []Certificate{{
			Subject:  Subject{Common: DefaultCommonName},
			Validity: Validity{Days: DefaultValidityDays},
			Key:      Key{Bits: DefaultKeyBits},
		}},
		bare: true,
	}
}

// FullName renders the subject in distinguished name order, for example
// "CN=test.local,C=US,O=Acme,OU=Dev".
func (s Subject) FullName() string {
	var b strings.Builder
	b.WriteString("CN=")
	b.WriteString(s.Common)
	if s.Country != "" {
		b.WriteString(",C=")
		b.WriteString(s.Country)
	}
	if s.Org != "" {
		b.WriteString(",O=")
		b.WriteString(s.Org)
	}
	if s.OrgUnit != "" {
		b.WriteString(",OU=")
		b.WriteString(s.OrgUnit)
	}
	if s.State != "" {
		b.WriteString(",ST=")
		b.WriteString(s.State)
	}
	if s.Locality != "" {
		b.WriteString(",L=")
		b.WriteString(s.Locality)
	}
	return b.String()
}

func (c Certificate) validate() error {
	switch {
	case c.Subject.Common == "":
		return errors.New("subject.common cannot be empty")
	case c.Subject.Country == "":
		return errors.New("subject.country cannot be empty")
	case c.Subject.Org == "":
		return errors.New("subject.org cannot be empty")
	case c.Validity.Days <= 0:
		return fmt.Errorf("validity.days must be positive, got %d", c.Validity.Days)
	case c.Validity.Days > maxValidityDays:
		return fmt.Errorf("validity.days must be at most %d, got %d", maxValidityDays, c.Validity.Days)
	case c.Key.Bits <= 0:
		return fmt.Errorf("key.bits must be positive, got %d", c.Key.Bits)
	}
	return nil
}

// FormatFromPath picks the document format from the file extension. Anything
// other than .yaml or .yml is read as TOML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// LoadSpec reads and parses the specification document at path.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read spec %s: %w", ErrParse, path, err)
	}
	return ParseSpec(data, FormatFromPath(path))
}

// ParseSpec decodes a specification document and checks that every record
// carries the required fields. Unknown keys are rejected.
func ParseSpec(data []byte, format Format) (*Spec, error) {
	var spec Spec

	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&spec); err != nil {
			return nil, fmt.Errorf("%w: failed to decode TOML spec: %w", ErrParse, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty YAML document decodes to io.EOF; treat it as zero records.
		if err := dec.Decode(&spec); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: failed to decode YAML spec: %w", ErrParse, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported spec format %q", ErrParse, format)
	}

	for i, c := range spec.Certs {
		if err := c.validate(); err != nil {
			return nil, fmt.Errorf("%w: certs[%d]: %w", ErrParse, i, err)
		}
	}

	return &spec, nil
}
