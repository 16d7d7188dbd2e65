package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// apiClient is a thin HTTP client for the CLI commands. Authentication
// is out of scope for this binary: it forwards the identity headers
// the server expects, the way an authenticating proxy would, so the
// CLI can exercise the API end to end against a server run with no
// proxy in front of it.
type apiClient struct {
	baseURL string
	tenant  string
	user    string
	roles   string
	http    *http.Client
}

func newAPIClient(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	tenant, _ := cmd.Flags().GetString("tenant")
	user, _ := cmd.Flags().GetString("user")
	roles, _ := cmd.Flags().GetString("roles")
	return &apiClient{
		baseURL: strings.TrimRight(server, "/"),
		tenant:  tenant,
		user:    user,
		roles:   roles,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) do(method, path string, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.user != "" {
		req.Header.Set("X-Identity-Status", "Confirmed")
		req.Header.Set("X-User-Id", c.user)
		req.Header.Set("X-Tenant-Id", c.tenant)
		if c.roles != "" {
			req.Header.Set("X-Roles", c.roles)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.http.Do(req)
}

func (c *apiClient) doJSON(method, path string, payload interface{}) (map[string]interface{}, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	resp, err := c.do(method, path, "application/json", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, string(data))
	}
	if len(data) == 0 {
		return nil, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func registerClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "Relic server base URL")
	cmd.PersistentFlags().String("tenant", "", "Tenant id to present as the caller")
	cmd.PersistentFlags().String("user", "", "User id to present as the caller (omit for anonymous)")
	cmd.PersistentFlags().String("roles", "", "Comma-separated roles to present (e.g. admin)")
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
