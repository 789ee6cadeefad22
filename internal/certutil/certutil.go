// Package certutil bootstraps a store's self-signed X.509 identity: a
// 2048-bit RSA key and certificate whose SHA-256 fingerprint is the
// store's 256-bit StoreID (spec.md §6).
package certutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/filoco/filoco/internal/model"
)

// Identity is a generated store identity: PEM-encoded cert/key ready to be
// written to `store_cert`/`store_key`, plus the StoreID derived from the
// certificate's fingerprint.
type Identity struct {
	StoreID model.StoreID
	CertPEM []byte
	KeyPEM  []byte
}

// Generate mints a fresh self-signed identity valid for 100 years (stores
// are expected to live far longer than any single certificate would
// normally be trusted for; there is no CA chain to validate against here —
// the fingerprint itself is the identity).
func Generate() (Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Identity{}, fmt.Errorf("certutil: generating key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return Identity{}, fmt.Errorf("certutil: generating serial: %w", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: "filoco-store"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(100, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return Identity{}, fmt.Errorf("certutil: creating certificate: %w", err)
	}

	fingerprint := sha256.Sum256(der)
	var id model.StoreID
	copy(id[:], fingerprint[:])

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	return Identity{StoreID: id, CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// WriteFiles persists the identity's cert/key under dir as
// `store_cert`/`store_key`, with the key mode-restricted to the owner.
func WriteFiles(dir string, id Identity) error {
	if err := os.WriteFile(dir+"/store_cert", id.CertPEM, 0o644); err != nil {
		return fmt.Errorf("certutil: writing store_cert: %w", err)
	}
	if err := os.WriteFile(dir+"/store_key", id.KeyPEM, 0o600); err != nil {
		return fmt.Errorf("certutil: writing store_key: %w", err)
	}
	return nil
}
