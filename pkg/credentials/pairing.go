package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/edgelink/device-agent/pkg/agenterr"
)

// PairingClient talks to the platform's pairing API: it exchanges a CSR
// for a certificate chain, and separately resolves the MQTT broker URL
// this device should connect to.
type PairingClient struct {
	http          *resty.Client
	baseURL       string
	secret        string
	allowInsecure bool
}

// NewPairingClient builds a client against baseURL (e.g.
// "https://api.example.com/pairing/v1") authenticating with the device's
// credential-secret as a bearer token. allowInsecure permits a non-TLS
// broker URL, for local development only.
func NewPairingClient(baseURL, secret string, allowInsecure bool) *PairingClient {
	return &PairingClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetAuthToken(secret).
			SetTimeout(30 * time.Second),
		baseURL:       baseURL,
		secret:        secret,
		allowInsecure: allowInsecure,
	}
}

type certificateRequestBody struct {
	Data struct {
		CSR string `json:"csr"`
	} `json:"data"`
}

type certificateResponseBody struct {
	Data struct {
		ClientCRT string `json:"client_crt"`
	} `json:"data"`
}

// RequestCertificate posts csrPEM to the pairing service and returns the
// PEM-encoded certificate chain it issues.
func (c *PairingClient) RequestCertificate(ctx context.Context, csrPEM []byte) ([]byte, error) {
	body := certificateRequestBody{}
	body.Data.CSR = string(csrPEM)

	var result certificateResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		Post("/protocols/astarte_mqtt_v1/credentials")
	if err != nil {
		return nil, agenterr.Wrap(agenterr.HTTPRequest, "credentials.RequestCertificate", err)
	}
	if resp.IsError() {
		return nil, agenterr.New(agenterr.HTTPRequest, "credentials.RequestCertificate",
			fmt.Sprintf("pairing service returned %s", resp.Status()))
	}
	if result.Data.ClientCRT == "" {
		return nil, agenterr.New(agenterr.HTTPRequest, "credentials.RequestCertificate", "response carried no client_crt")
	}
	return []byte(result.Data.ClientCRT), nil
}

type brokerURLResponseBody struct {
	Data struct {
		Protocols struct {
			MQTTv1 struct {
				BrokerURL string `json:"broker_url"`
			} `json:"astarte_mqtt_v1"`
		} `json:"protocols"`
	} `json:"data"`
}

// BrokerURL resolves the mqtts://host:port/ URL this device should
// connect to, rejecting anything but mqtts:// unless allowInsecure was
// set at construction.
func (c *PairingClient) BrokerURL(ctx context.Context) (string, error) {
	var result brokerURLResponseBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Get("")
	if err != nil {
		return "", agenterr.Wrap(agenterr.HTTPRequest, "credentials.BrokerURL", err)
	}
	if resp.IsError() {
		return "", agenterr.New(agenterr.HTTPRequest, "credentials.BrokerURL",
			fmt.Sprintf("pairing service returned %s", resp.Status()))
	}

	url := result.Data.Protocols.MQTTv1.BrokerURL
	if err := validateBrokerURL(url, c.allowInsecure); err != nil {
		return "", err
	}
	return url, nil
}

func validateBrokerURL(url string, allowInsecure bool) error {
	if url == "" {
		return agenterr.New(agenterr.HTTPRequest, "credentials.validateBrokerURL", "empty broker URL")
	}
	if strings.HasPrefix(url, "mqtts://") {
		return nil
	}
	if allowInsecure && strings.HasPrefix(url, "mqtt://") {
		return nil
	}
	return agenterr.New(agenterr.HTTPRequest, "credentials.validateBrokerURL", "broker URL "+url+" is not mqtts://")
}
