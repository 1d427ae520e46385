package certgen

// Writer defines the interface for storing certificate history records.
type Writer interface {
	// AddCert adds a new certificate record to the history.
	AddCert(cert Cert) error
}

// Reader lists the certificate history, oldest first.
type Reader interface {
	ListCerts() ([]Cert, error)
}
