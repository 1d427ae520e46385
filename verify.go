package certgen

import (
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// VerifyKeyPair checks that signer holds the private key of cert and that
// cert carries a valid self-signature.
func VerifyKeyPair(cert *x509.Certificate, signer crypto.Signer) error {
	if err := cert.CheckSignatureFrom(cert); err != nil {
		return fmt.Errorf("%w: certificate signature does not verify: %w", ErrCrypto, err)
	}

	digest := sha256.Sum256(cert.Raw)
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	if err != nil {
		return fmt.Errorf("%w: failed to sign with private key: %w", ErrCrypto, err)
	}
	if err := cert.CheckSignature(cert.SignatureAlgorithm, cert.Raw, sig); err != nil {
		return fmt.Errorf("%w: private key does not match certificate: %w", ErrCrypto, err)
	}
	return nil
}
