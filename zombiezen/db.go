package zombiezen

import (
	"context"
	"fmt"

	"github.com/caasmo/certgen"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const schema = `CREATE TABLE IF NOT EXISTS certificates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	identifier TEXT NOT NULL,
	subject TEXT NOT NULL,
	serial TEXT NOT NULL,
	cert_file TEXT NOT NULL,
	key_file TEXT NOT NULL,
	certificate_pem TEXT NOT NULL,
	issued_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS certificates_identifier ON certificates (identifier);`

// Db implements certgen.Writer and certgen.Reader using zombiezen/sqlite.
type Db struct {
	pool *sqlitex.Pool
}

var (
	_ certgen.Writer = (*Db)(nil)
	_ certgen.Reader = (*Db)(nil)
)

// NewPool opens a single connection pool on the SQLite file at path,
// creating the file if needed.
func NewPool(path string) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("db: failed to open %s: %w", path, err)
	}
	return pool, nil
}

// NewReadOnlyPool opens a single connection pool on an existing SQLite file
// that rejects writes.
func NewReadOnlyPool(path string) (*sqlitex.Pool, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadOnly,
		PoolSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("db: failed to open %s read-only: %w", path, err)
	}
	return pool, nil
}

// NewReader creates a Db for listing only. It leaves the schema untouched.
func NewReader(pool *sqlitex.Pool) *Db {
	if pool == nil {
		panic("zombiezen.NewReader: received nil pool")
	}
	return &Db{pool: pool}
}

// New creates a Db on an externally managed pool and makes sure the
// certificates table exists.
func New(pool *sqlitex.Pool) (*Db, error) {
	if pool == nil {
		panic("zombiezen.New: received nil pool")
	}

	conn, err := pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("db: failed to get connection: %w", err)
	}
	defer pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return nil, fmt.Errorf("db: failed to create schema: %w", err)
	}
	return &Db{pool: pool}, nil
}

// AddCert adds a new certificate record to the 'certificates' table.
func (d *Db) AddCert(cert certgen.Cert) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("db: failed to get connection: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`INSERT INTO certificates (
			identifier, subject, serial, cert_file, key_file, certificate_pem, issued_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				cert.Identifier,
				cert.Subject,
				cert.Serial,
				cert.CertFile,
				cert.KeyFile,
				cert.CertificatePEM,
				certgen.TimeFormat(cert.IssuedAt),
				certgen.TimeFormat(cert.ExpiresAt),
			},
		})
	if err != nil {
		return fmt.Errorf("db: failed to insert certificate for identifier %q: %w", cert.Identifier, err)
	}
	return nil
}

// ListCerts returns every recorded certificate in insertion order.
func (d *Db) ListCerts() ([]certgen.Cert, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("db: failed to get connection: %w", err)
	}
	defer d.pool.Put(conn)

	var certs []certgen.Cert
	err = sqlitex.Execute(conn,
		`SELECT id, identifier, subject, serial, cert_file, key_file, certificate_pem, issued_at, expires_at
		FROM certificates ORDER BY id;`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				issuedAt, err := certgen.TimeParse(stmt.ColumnText(7))
				if err != nil {
					return err
				}
				expiresAt, err := certgen.TimeParse(stmt.ColumnText(8))
				if err != nil {
					return err
				}
				certs = append(certs, certgen.Cert{
					ID:             stmt.ColumnInt64(0),
					Identifier:     stmt.ColumnText(1),
					Subject:        stmt.ColumnText(2),
					Serial:         stmt.ColumnText(3),
					CertFile:       stmt.ColumnText(4),
					KeyFile:        stmt.ColumnText(5),
					CertificatePEM: stmt.ColumnText(6),
					IssuedAt:       issuedAt,
					ExpiresAt:      expiresAt,
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("db: failed to list certificates: %w", err)
	}
	return certs, nil
}
