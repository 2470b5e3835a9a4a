package credentials

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// BuildCSR produces a PKCS#10 certificate signing request for k, with the
// fixed subject the pairing service expects — the platform derives the
// device's real identity from the bearer credential-secret, not from
// anything in the CSR, so the CN is a placeholder.
func BuildCSR(k *KeyPair) ([]byte, error) {
	template := &x509.CertificateRequest{
		Subject:            pkix.Name{CommonName: "temporary"},
		SignatureAlgorithm: x509.ECDSAWithSHA256,
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, template, k.Private)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "credentials.BuildCSR", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der}), nil
}
