package comms

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/pion/webrtc/v2"
)

const TWILIO_TOKEN_URL = "https://api.twilio.com/2010-04-01/Accounts/%s/Tokens.json"

type authConfig struct {
	TwilioSid   string `env:"TWILIO_SID"`
	TwilioToken string `env:"TWILIO_TOKEN"`
}

// TwilioClient fetches short lived TURN credentials so remotes behind NAT can
// still reach the conductor.
type TwilioClient struct {
	URL        string
	HTTPClient *http.Client

	authConfig authConfig
}

type TwilioTokensResponse struct {
	IceServers []TwilioIceServer `json:"ice_servers"`
}

type TwilioIceServer struct {
	Url        string `json:"url"`
	Credential string `json:"credential"`
	Username   string `json:"username"`
}

func NewTwilioClient() (client *TwilioClient, err error) {
	client = &TwilioClient{HTTPClient: http.DefaultClient}
	if err = env.Parse(&client.authConfig); err != nil {
		return nil, err
	}

	if client.authConfig.TwilioSid == "" || client.authConfig.TwilioToken == "" {
		return nil, fmt.Errorf("unable to parse env varables to get twilio config")
	}
	client.URL = fmt.Sprintf(TWILIO_TOKEN_URL, client.authConfig.TwilioSid)
	return
}

func (tc *TwilioClient) IceServers() (iceServers []webrtc.ICEServer, err error) {
	form := url.Values{}
	form.Add("Ttl", "21600")
	req, err := http.NewRequest("POST", tc.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("unable to generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(tc.authConfig.TwilioSid, tc.authConfig.TwilioToken)

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("twilio server returned status code %d", resp.StatusCode)
	}

	var tokens TwilioTokensResponse
	err = json.NewDecoder(resp.Body).Decode(&tokens)
	if err != nil {
		return nil, fmt.Errorf("unable to read JSON response: %w", err)
	}

	if len(tokens.IceServers) == 0 {
		return nil, fmt.Errorf("JSON did not contain any ice servers")
	}

	for _, ices := range tokens.IceServers {
		log.WithField("url", ices.Url).Debug("adding ice server")
		server := webrtc.ICEServer{
			URLs:     []string{ices.Url},
			Username: ices.Username,
		}
		if ices.Credential != "" {
			server.Credential = ices.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		iceServers = append(iceServers, server)
	}

	return
}
