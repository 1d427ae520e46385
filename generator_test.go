package certgen

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHistory struct {
	certs []Cert
}

func (m *memHistory) AddCert(cert Cert) error {
	m.certs = append(m.certs, cert)
	return nil
}

func testConfig(dir string) Config {
	cfg := DefaultConfig()
	cfg.OutputDir = dir
	return cfg
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestGenerateExampleScenario(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	specPath := filepath.Join(t.TempDir(), "certs.toml")
	require.NoError(t, os.WriteFile(specPath, []byte(exampleTOML), 0o644))

	cfg := testConfig(dir)
	cfg.SpecFile = specPath

	before := time.Now()
	require.NoError(t, NewGenerator(cfg, testLogger()).Generate(context.Background()))

	assert.Equal(t, []string{"test.local.crt", "test.local.key"}, dirNames(t, dir))

	cert, key, err := LoadKeyPair(filepath.Join(dir, "test.local.crt"), filepath.Join(dir, "test.local.key"))
	require.NoError(t, err)
	assert.Equal(t, "test.local", cert.Subject.CommonName)
	assert.Equal(t, 30*24*time.Hour, cert.NotAfter.Sub(cert.NotBefore))
	assert.False(t, cert.NotBefore.After(time.Now()))
	assert.True(t, before.Before(cert.NotAfter))
	assert.Equal(t, cert.RawSubject, cert.RawIssuer)
	assert.Len(t, cert.ExtKeyUsage, 2)
	assert.NoError(t, VerifyKeyPair(cert, key))
}

func TestRunWritesPairPerRecord(t *testing.T) {
	dir := t.TempDir()
	spec := &Spec{Certs: []Certificate{testRecord("one.local"), testRecord("two.local"), testRecord("three.local")}}
	history := &memHistory{}

	require.NoError(t, NewGenerator(testConfig(dir), testLogger(), WithHistory(history)).Run(context.Background(), spec))

	assert.Equal(t, []string{
		"one.local.crt", "one.local.key",
		"three.local.crt", "three.local.key",
		"two.local.crt", "two.local.key",
	}, dirNames(t, dir))

	require.Len(t, history.certs, 3)
	for i, rec := range spec.Certs {
		got := history.certs[i]
		assert.Equal(t, rec.Subject.Common, got.Identifier)
		assert.Equal(t, rec.Subject.FullName(), got.Subject)
		assert.Equal(t, filepath.Join(dir, rec.Subject.Common+".crt"), got.CertFile)
		assert.Equal(t, filepath.Join(dir, rec.Subject.Common+".key"), got.KeyFile)

		cert, _, err := LoadKeyPair(got.CertFile, got.KeyFile)
		require.NoError(t, err)
		assert.Equal(t, cert.SerialNumber.Text(16), got.Serial)
		assert.True(t, cert.NotBefore.Equal(got.IssuedAt))
		assert.True(t, cert.NotAfter.Equal(got.ExpiresAt))
		assert.Contains(t, got.CertificatePEM, "-----BEGIN CERTIFICATE-----")
	}
}

func TestRunBare(t *testing.T) {
	dir := t.TempDir()
	spec := &Spec{
		Certs: []Certificate{{
			Subject:  Subject{Common: DefaultCommonName},
			Validity: Validity{Days: DefaultValidityDays},
			Key:      Key{Bits: testBits},
		}},
		bare: true,
	}

	require.NoError(t, NewGenerator(testConfig(dir), testLogger()).Run(context.Background(), spec))
	assert.Equal(t, []string{BareCertFilePEM, BareKeyFile}, dirNames(t, dir))

	cert, key, err := LoadKeyPair(filepath.Join(dir, BareCertFilePEM), filepath.Join(dir, BareKeyFile))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cert.Subject.CommonName)
	assert.Empty(t, cert.ExtKeyUsage)
	assert.True(t, cert.IsCA)
	assert.Equal(t, 365*24*time.Hour, cert.NotAfter.Sub(cert.NotBefore))
	assert.NoError(t, VerifyKeyPair(cert, key))
}

func TestRunDER(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.CertEncoding = EncodingDER

	spec := &Spec{Certs: []Certificate{testRecord("der.local")}}
	require.NoError(t, NewGenerator(cfg, testLogger()).Run(context.Background(), spec))

	cert, key, err := LoadKeyPair(filepath.Join(dir, "der.local.crt"), filepath.Join(dir, "der.local.key"))
	require.NoError(t, err)
	assert.NoError(t, VerifyKeyPair(cert, key))
}

func TestRunAbortsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	weak := testRecord("weak.local")
	weak.Key.Bits = 512
	spec := &Spec{Certs: []Certificate{testRecord("first.local"), weak, testRecord("never.local")}}

	err := NewGenerator(testConfig(dir), testLogger()).Run(context.Background(), spec)
	assert.ErrorIs(t, err, ErrCrypto)
	assert.Contains(t, err.Error(), "certs[1]")
	assert.Equal(t, []string{"first.local.crt", "first.local.key"}, dirNames(t, dir))
}

func TestRunDuplicateCommonNameOverwrites(t *testing.T) {
	dir := t.TempDir()
	second := testRecord("dup.local")
	second.Validity.Days = 7
	spec := &Spec{Certs: []Certificate{testRecord("dup.local"), second}}

	require.NoError(t, NewGenerator(testConfig(dir), testLogger()).Run(context.Background(), spec))
	assert.Equal(t, []string{"dup.local.crt", "dup.local.key"}, dirNames(t, dir))

	cert, _, err := LoadKeyPair(filepath.Join(dir, "dup.local.crt"), filepath.Join(dir, "dup.local.key"))
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cert.NotAfter.Sub(cert.NotBefore))
}

func TestRunSerialsDifferAcrossRuns(t *testing.T) {
	spec := &Spec{Certs: []Certificate{testRecord("same.local")}}

	serial := func() string {
		dir := t.TempDir()
		require.NoError(t, NewGenerator(testConfig(dir), testLogger()).Run(context.Background(), spec))
		cert, _, err := LoadKeyPair(filepath.Join(dir, "same.local.crt"), filepath.Join(dir, "same.local.key"))
		require.NoError(t, err)
		return cert.SerialNumber.Text(16)
	}

	assert.NotEqual(t, serial(), serial())
}

func TestGenerateMalformedSpecWritesNothing(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "out")
	specPath := filepath.Join(root, "certs.toml")
	malformed := "[[certs]]\nsubject = { country = \"US\", org = \"Acme\" }\nvalidity = { days = 30 }\nkey = { bits = 2048 }\n"
	require.NoError(t, os.WriteFile(specPath, []byte(malformed), 0o644))

	cfg := testConfig(dir)
	cfg.SpecFile = specPath
	history := &memHistory{}

	err := NewGenerator(cfg, testLogger(), WithHistory(history)).Generate(context.Background())
	assert.ErrorIs(t, err, ErrParse)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr), "output directory must not be created")
	assert.Empty(t, history.certs)
}

func TestRunExistingOutputDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	spec := &Spec{Certs: []Certificate{testRecord("exists.local")}}
	require.NoError(t, NewGenerator(testConfig(dir), testLogger()).Run(context.Background(), spec))
	assert.Equal(t, []string{"exists.local.crt", "exists.local.key", "keep.txt"}, dirNames(t, dir))
}

func TestRunOutputDirIsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	err := NewGenerator(testConfig(path), testLogger()).Run(context.Background(), &Spec{})
	assert.ErrorIs(t, err, ErrIO)
}

func TestRunCanceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewGenerator(testConfig(dir), testLogger()).Run(ctx, &Spec{Certs: []Certificate{testRecord("late.local")}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirNames(t, dir))
}

func TestRunValidityOverflowWritesNothing(t *testing.T) {
	dir := t.TempDir()
	rec := testRecord("forever.local")
	rec.Validity.Days = 1 << 62
	history := &memHistory{}

	err := NewGenerator(testConfig(dir), testLogger(), WithHistory(history)).Run(context.Background(), &Spec{Certs: []Certificate{rec}})
	assert.ErrorIs(t, err, ErrCrypto)
	assert.Contains(t, err.Error(), "certs[0]")
	assert.Empty(t, dirNames(t, dir))
	assert.Empty(t, history.certs)
}
