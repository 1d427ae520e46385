package certgen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/mail"
	"time"
	"unicode"
)

// serialBytes is the width of the random serial number.
const serialBytes = 8

// maxValidityDays keeps notBefore + days well inside the range time.Time
// arithmetic can represent.
const maxValidityDays = 3_652_500

// maxNotAfter is the latest instant an X.509 GeneralizedTime can hold.
var maxNotAfter = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

var (
	oidCommonName         = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidCountry            = asn1.ObjectIdentifier{2, 5, 4, 6}
	oidLocality           = asn1.ObjectIdentifier{2, 5, 4, 7}
	oidState              = asn1.ObjectIdentifier{2, 5, 4, 8}
	oidOrganization       = asn1.ObjectIdentifier{2, 5, 4, 10}
	oidOrganizationalUnit = asn1.ObjectIdentifier{2, 5, 4, 11}
)

// Issued is the result of building one certificate record.
type Issued struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	// DER is the signed certificate as produced by x509.CreateCertificate.
	DER []byte
}

// Builder turns certificate records into self-signed certificates.
type Builder struct {
	// Entropy is the source for key material and serial numbers.
	Entropy io.Reader
	// Now returns the generation time.
	Now func() time.Time
	// ExtKeyUsage adds the serverAuth and clientAuth extended key usages.
	ExtKeyUsage bool

	logger *slog.Logger
}

// NewBuilder returns a Builder reading from crypto/rand with the wall clock.
func NewBuilder(logger *slog.Logger) *Builder {
	if logger == nil {
		panic("NewBuilder: received nil logger")
	}
	return &Builder{
		Entropy: rand.Reader,
		Now:     time.Now,
		logger:  logger.With("component", "builder"),
	}
}

// Build generates a fresh RSA key and a certificate for rec signed by that
// key. Subject and issuer are the same name. The certificate is marked as a
// CA with a path length of zero.
func (b *Builder) Build(rec Certificate) (*Issued, error) {
	notBefore, notAfter, err := b.validity(rec.Validity.Days)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Generating RSA key...", "bits", rec.Key.Bits)
	key, err := rsa.GenerateKey(b.Entropy, rec.Key.Bits)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate %d bit RSA key: %w", ErrCrypto, rec.Key.Bits, err)
	}

	serial, err := b.serialNumber()
	if err != nil {
		return nil, err
	}

	b.logger.Debug("Configuring cert params", "subject", rec.Subject.FullName(), "serial", serial.Text(16))
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subjectName(rec.Subject),
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
	}
	if b.ExtKeyUsage {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	}
	if email := rec.Subject.Email; email != "" {
		if isSANEmail(email) {
			template.EmailAddresses = []string{email}
		} else {
			b.logger.Warn("Email is not a plain ASCII address, leaving it out of the certificate", "email", email)
		}
	}

	b.logger.Debug("Signing the certificate...")
	der, err := x509.CreateCertificate(b.Entropy, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign certificate for %q: %w", ErrCrypto, rec.Subject.Common, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse signed certificate: %w", ErrCrypto, err)
	}

	return &Issued{PrivateKey: key, Certificate: cert, DER: der}, nil
}

// validity returns notBefore, the current time in UTC truncated to the
// second, and notAfter, days calendar days later.
func (b *Builder) validity(days int) (time.Time, time.Time, error) {
	if days <= 0 || days > maxValidityDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: validity of %d days is out of range", ErrCrypto, days)
	}
	notBefore := b.Now().UTC().Truncate(time.Second)
	notAfter := notBefore.AddDate(0, 0, days)
	if !notAfter.After(notBefore) || notAfter.After(maxNotAfter) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: validity of %d days from %s ends after %s", ErrCrypto, days, notBefore.Format(time.RFC3339), maxNotAfter.Format(time.RFC3339))
	}
	return notBefore, notAfter, nil
}

// isSANEmail reports whether email is a bare ASCII address that can be
// encoded as an rfc822Name.
func isSANEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return false
	}
	for _, r := range email {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func (b *Builder) serialNumber() (*big.Int, error) {
	buf := make([]byte, serialBytes)
	if _, err := io.ReadFull(b.Entropy, buf); err != nil {
		return nil, fmt.Errorf("%w: failed to generate serial number: %w", ErrCrypto, err)
	}
	return new(big.Int).SetBytes(buf), nil
}

// subjectName lays the attributes out as CN, C, O, OU, ST, L. pkix.Name
// encodes its typed fields in its own order, so everything goes through
// ExtraNames.
func subjectName(s Subject) pkix.Name {
	attrs := []struct {
		oid   asn1.ObjectIdentifier
		value string
	}{
		{oidCommonName, s.Common},
		{oidCountry, s.Country},
		{oidOrganization, s.Org},
		{oidOrganizationalUnit, s.OrgUnit},
		{oidState, s.State},
		{oidLocality, s.Locality},
	}

	var name pkix.Name
	for _, a := range attrs {
		if a.value == "" {
			continue
		}
		name.ExtraNames = append(name.ExtraNames, pkix.AttributeTypeAndValue{Type: a.oid, Value: a.value})
	}
	return name
}
