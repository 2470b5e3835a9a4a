package device

import (
	"testing"

	"github.com/edgelink/device-agent/pkg/bsoncodec"
	"github.com/edgelink/device-agent/pkg/credentials"
	"github.com/edgelink/device-agent/pkg/schema"
)

// testSelfSignedPEM is not a real certificate — Store.Install never parses
// its chainPEM argument, it only gates Ready() on non-empty byte slices, so
// any placeholder content exercises the credential-renewal path this
// package's tests check.
const testSelfSignedPEM = "-----BEGIN CERTIFICATE-----\nplaceholder\n-----END CERTIFICATE-----\n"

func mustKeyPair(t *testing.T) *credentials.KeyPair {
	t.Helper()
	kp, err := credentials.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	return kp
}

func encodeIndividualForTest(t *testing.T, v schema.Individual) []byte {
	t.Helper()
	data, err := bsoncodec.EncodeIndividual(v, nil)
	if err != nil {
		t.Fatalf("EncodeIndividual: %v", err)
	}
	return data
}

func encodeObjectForTest(t *testing.T, obj schema.Object) []byte {
	t.Helper()
	data, err := bsoncodec.EncodeObject(obj, nil)
	if err != nil {
		t.Fatalf("EncodeObject: %v", err)
	}
	return data
}
