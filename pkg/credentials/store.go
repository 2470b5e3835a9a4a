package credentials

import (
	"crypto/tls"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// Store holds the installed (private-key, certificate-chain) pair under
// the well-known tag the MQTT transport reads at connect time. A device
// has exactly one active identity at a time; re-pairing overwrites it.
type Store struct {
	keyPEM   []byte
	chainPEM []byte
}

// NewStore returns an empty credential store.
func NewStore() *Store {
	return &Store{}
}

// Install records the key pair and certificate chain obtained from a
// successful pairing exchange.
func (s *Store) Install(k *KeyPair, chainPEM []byte) error {
	keyPEM, err := k.PrivateKeyPEM()
	if err != nil {
		return err
	}
	s.keyPEM = keyPEM
	s.chainPEM = chainPEM
	return nil
}

// Ready reports whether a certificate pair has been installed.
func (s *Store) Ready() bool {
	return len(s.keyPEM) > 0 && len(s.chainPEM) > 0
}

// Clear discards the installed credentials so the next Connect acquires a
// fresh certificate — the recovery path after a TLS-layer connection
// failure surfaces the old pair as no longer trustworthy.
func (s *Store) Clear() {
	s.keyPEM = nil
	s.chainPEM = nil
}

// TLSCertificate builds the tls.Certificate the MQTT transport presents
// during the TLS handshake.
func (s *Store) TLSCertificate() (tls.Certificate, error) {
	if !s.Ready() {
		return tls.Certificate{}, agenterr.New(agenterr.Crypto, "credentials.TLSCertificate", "no credentials installed")
	}
	cert, err := tls.X509KeyPair(s.chainPEM, s.keyPEM)
	if err != nil {
		return tls.Certificate{}, agenterr.Wrap(agenterr.Crypto, "credentials.TLSCertificate", err)
	}
	return cert, nil
}
