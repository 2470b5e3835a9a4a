package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestCertificate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-secret" {
			t.Errorf("missing or wrong bearer token: %q", r.Header.Get("Authorization"))
		}
		var body certificateRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		if body.Data.CSR == "" {
			t.Error("expected a non-empty CSR in the request body")
		}

		resp := certificateResponseBody{}
		resp.Data.ClientCRT = "-----BEGIN CERTIFICATE-----\nMOCK\n-----END CERTIFICATE-----\n"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewPairingClient(srv.URL, "test-secret", false)
	chain, err := c.RequestCertificate(context.Background(), []byte("fake-csr-pem"))
	if err != nil {
		t.Fatalf("RequestCertificate: %v", err)
	}
	if len(chain) == 0 {
		t.Error("expected a non-empty chain")
	}
}

func TestBrokerURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := brokerURLResponseBody{}
		resp.Data.Protocols.MQTTv1.BrokerURL = "mqtts://broker.example.com:8883/"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewPairingClient(srv.URL, "test-secret", false)
	url, err := c.BrokerURL(context.Background())
	if err != nil {
		t.Fatalf("BrokerURL: %v", err)
	}
	if url != "mqtts://broker.example.com:8883/" {
		t.Errorf("BrokerURL = %q", url)
	}
}

func TestRequestCertificateNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewPairingClient(srv.URL, "bad-secret", false)
	if _, err := c.RequestCertificate(context.Background(), []byte("csr")); err == nil {
		t.Error("expected an error for a 403 response")
	}
}
