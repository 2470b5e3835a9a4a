// Package credentials manages the device's PKI identity: generating its
// key pair, requesting a certificate from the platform's pairing service,
// and handing the resulting (key, chain) off to the transport layer.
package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// KeyPair is the device's private signing key, generated fresh for every
// pairing attempt — Astarte never reuses a key across re-pairings.
type KeyPair struct {
	Private *ecdsa.PrivateKey
}

// GenerateKeyPair produces a new secp256r1 (P-256) key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "credentials.GenerateKeyPair", err)
	}
	return &KeyPair{Private: priv}, nil
}

// PrivateKeyPEM renders the private key as a PKCS#8 PEM block, the shape
// the transport's TLS credential store expects.
func (k *KeyPair) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return nil, agenterr.Wrap(agenterr.Crypto, "credentials.PrivateKeyPEM", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
