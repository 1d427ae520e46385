package certgen

import (
	"fmt"
	"time"
)

// Cert represents a row of the issuance history.
type Cert struct {
	ID             int64     // Primary Key (Populated on read)
	Identifier     string    // Subject common name
	Subject        string    // Subject.FullName()
	Serial         string    // Hex encoded serial number
	CertFile       string    // Path of the certificate file
	KeyFile        string    // Path of the private key file
	CertificatePEM string    // PEM encoded certificate, never the key
	IssuedAt       time.Time // UTC notBefore
	ExpiresAt      time.Time // UTC notAfter
}

// TimeFormat renders t the way history timestamps are stored.
func TimeFormat(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// TimeParse is the inverse of TimeFormat.
func TimeParse(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid history timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
