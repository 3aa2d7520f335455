/*
Copyright © 2024 the NPPMap authors.
This file is part of NPPMap.

NPPMap is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

NPPMap is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with NPPMap.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package download fetches LAI and FAPAR products from an openEO back end.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultBackendURL is the openEO back end used when none is configured.
const DefaultBackendURL = "https://openeo.vito.be/openeo/1.2"

// Auth holds OpenID Connect credentials. When ClientSecret is set the
// client credentials grant is used; otherwise when RefreshToken is set
// the refresh token grant is used; otherwise the device authorization
// grant with PKCE is used, which requires a user to visit a URL.
type Auth struct {
	// Provider is the openEO identifier of the OIDC provider. If empty,
	// the first provider offered by the back end is used.
	Provider string

	// ClientID defaults to the provider's default client.
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Extent is a spatial extent in openEO form. CRS defaults to EPSG:4326
// on the back end.
type Extent struct {
	West  float64     `json:"west"`
	South float64     `json:"south"`
	East  float64     `json:"east"`
	North float64     `json:"north"`
	CRS   interface{} `json:"crs,omitempty"`
}

// Client is an authenticated connection to an openEO back end.
type Client struct {
	url        string
	providerID string
	ts         oauth2.TokenSource
	http       *http.Client
	log        logrus.FieldLogger
}

// StatusError is returned when the back end responds with an
// unsuccessful HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download: back end returned %d %s: %s", e.Code, http.StatusText(e.Code), e.Body)
}

// Temporary reports whether the request may succeed if retried.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

type provider struct {
	ID             string   `json:"id"`
	Issuer         string   `json:"issuer"`
	Title          string   `json:"title"`
	Scopes         []string `json:"scopes"`
	DefaultClients []struct {
		ID         string   `json:"id"`
		GrantTypes []string `json:"grant_types"`
	} `json:"default_clients"`
}

type discovery struct {
	TokenEndpoint               string `json:"token_endpoint"`
	DeviceAuthorizationEndpoint string `json:"device_authorization_endpoint"`
}

// Connect discovers the back end's OIDC providers and authenticates
// with auth. If hc is nil, http.DefaultClient is used.
func Connect(ctx context.Context, backendURL string, auth Auth, hc *http.Client, log logrus.FieldLogger) (*Client, error) {
	if backendURL == "" {
		backendURL = DefaultBackendURL
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{url: strings.TrimSuffix(backendURL, "/"), http: hc, log: log.WithField("backend", backendURL)}

	p, err := c.provider(ctx, auth.Provider)
	if err != nil {
		return nil, err
	}
	c.providerID = p.ID
	var d discovery
	if err := c.getJSON(ctx, strings.TrimSuffix(p.Issuer, "/")+"/.well-known/openid-configuration", &d); err != nil {
		return nil, fmt.Errorf("download: OIDC discovery for provider %s: %v", p.ID, err)
	}
	clientID := auth.ClientID
	if clientID == "" && len(p.DefaultClients) > 0 {
		clientID = p.DefaultClients[0].ID
	}
	if clientID == "" {
		return nil, fmt.Errorf("download: no OIDC client ID for provider %s", p.ID)
	}
	scopes := p.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}

	tctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: auth.ClientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL:      d.TokenEndpoint,
			DeviceAuthURL: d.DeviceAuthorizationEndpoint,
		},
	}
	var ts oauth2.TokenSource
	switch {
	case auth.ClientSecret != "":
		c.log.Info("authenticating with OIDC client credentials")
		cc := &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: auth.ClientSecret,
			TokenURL:     d.TokenEndpoint,
			Scopes:       scopes,
		}
		ts = cc.TokenSource(tctx)
	case auth.RefreshToken != "":
		c.log.Info("authenticating with OIDC refresh token")
		ts = cfg.TokenSource(tctx, &oauth2.Token{RefreshToken: auth.RefreshToken})
	default:
		tok, err := deviceFlow(context.WithValue(ctx, oauth2.HTTPClient, hc), cfg, c.log)
		if err != nil {
			return nil, err
		}
		ts = cfg.TokenSource(tctx, tok)
	}
	c.ts = oauth2.ReuseTokenSource(nil, ts)
	if _, err := c.ts.Token(); err != nil {
		return nil, fmt.Errorf("download: OIDC authentication with provider %s: %v", p.ID, err)
	}
	return c, nil
}

// provider returns the OIDC provider with the given id, or the first
// provider if id is empty.
func (c *Client) provider(ctx context.Context, id string) (*provider, error) {
	var resp struct {
		Providers []provider `json:"providers"`
	}
	if err := c.getJSON(ctx, c.url+"/credentials/oidc", &resp); err != nil {
		return nil, fmt.Errorf("download: listing OIDC providers: %v", err)
	}
	if len(resp.Providers) == 0 {
		return nil, fmt.Errorf("download: back end %s offers no OIDC providers", c.url)
	}
	if id == "" {
		return &resp.Providers[0], nil
	}
	for i, p := range resp.Providers {
		if p.ID == id {
			return &resp.Providers[i], nil
		}
	}
	return nil, fmt.Errorf("download: back end %s has no OIDC provider %q", c.url, id)
}

func deviceFlow(ctx context.Context, cfg *oauth2.Config, log logrus.FieldLogger) (*oauth2.Token, error) {
	if cfg.Endpoint.DeviceAuthURL == "" {
		return nil, fmt.Errorf("download: OIDC provider does not support the device flow; configure a refresh token or client secret")
	}
	verifier := oauth2.GenerateVerifier()
	da, err := cfg.DeviceAuth(ctx, oauth2.S256ChallengeOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("download: OIDC device authorization: %v", err)
	}
	u := da.VerificationURIComplete
	if u == "" {
		u = da.VerificationURI
	}
	log.WithFields(logrus.Fields{"url": u, "code": da.UserCode}).Warn("visit the URL to authenticate")
	tok, err := cfg.DeviceAccessToken(ctx, da, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("download: OIDC device flow: %v", err)
	}
	return tok, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// Authorization returns the value of the Authorization header for
// requests to the back end.
func (c *Client) Authorization() (string, error) {
	tok, err := c.ts.Token()
	if err != nil {
		return "", fmt.Errorf("download: refreshing OIDC token: %w", err)
	}
	return "Bearer oidc/" + c.providerID + "/" + tok.AccessToken, nil
}

type node struct {
	ProcessID string                 `json:"process_id"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    bool                   `json:"result,omitempty"`
}

// processGraph returns a synchronous processing request that loads one
// band of a collection for a single date and saves it as a GeoTIFF.
func processGraph(collection, band string, extent Extent, date string) map[string]interface{} {
	return map[string]interface{}{
		"process": map[string]interface{}{
			"process_graph": map[string]node{
				"load1": {
					ProcessID: "load_collection",
					Arguments: map[string]interface{}{
						"id":              collection,
						"spatial_extent":  extent,
						"temporal_extent": []string{date, date},
						"bands":           []string{band},
					},
				},
				"save1": {
					ProcessID: "save_result",
					Arguments: map[string]interface{}{
						"data":   map[string]string{"from_node": "load1"},
						"format": "GTiff",
					},
					Result: true,
				},
			},
		},
	}
}

// Download loads one band of collection over extent on date and saves
// it as a GeoTIFF at path. The file is only created if the request
// succeeds.
func (c *Client) Download(ctx context.Context, collection, band string, extent Extent, date, path string) error {
	body, err := json.Marshal(processGraph(collection, band, extent, date))
	if err != nil {
		return fmt.Errorf("download: encoding process graph: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/result", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	auth, err := c.Authorization()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download: writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("download: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("download: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
