// Package googlefeed sources observations straight from the Google
// Calendar and Gmail APIs, for installs without the gog CLI.
package googlefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/attune-hq/attune/internal/config"
)

// OAuthClient handles OAuth2 authentication for the Google feeds.
// Only read scopes are requested; this engine never sends anything.
type OAuthClient struct {
	config    *oauth2.Config
	tokenFile string
}

// NewOAuthClient creates an OAuth client from config
func NewOAuthClient(cfg config.GoogleConfig) *OAuthClient {
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  "http://localhost:8765/callback",
			Scopes: []string{
				calendar.CalendarReadonlyScope,
				gmail.GmailReadonlyScope,
			},
			Endpoint: google.Endpoint,
		},
		tokenFile: cfg.TokenFile,
	}
}

// IsConfigured checks whether credentials are present
func (c *OAuthClient) IsConfigured() bool {
	return c.config.ClientID != "" && c.config.ClientSecret != ""
}

// GetAuthURL returns the URL for user authorization
func (c *OAuthClient) GetAuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges the authorization code for tokens
func (c *OAuthClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	return c.config.Exchange(ctx, code)
}

// StartOAuthFlow performs the complete OAuth flow with a local callback
func (c *OAuthClient) StartOAuthFlow(ctx context.Context) (*oauth2.Token, error) {
	state := fmt.Sprintf("attune-%d", time.Now().UnixNano())

	server := newLocalAuthServer(8765)
	if err := server.start(); err != nil {
		return nil, fmt.Errorf("failed to start auth server: %w", err)
	}
	defer server.stop(ctx)

	authURL := c.GetAuthURL(state)
	fmt.Printf("\nOpen this URL in your browser to authorize Attune:\n\n%s\n\n", authURL)
	fmt.Println("Waiting for authorization...")

	code, err := server.waitForCode(5 * time.Minute)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}

	token, err := c.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	if err := c.SaveToken(token); err != nil {
		return nil, err
	}
	return token, nil
}

// SaveToken persists a token to the configured token file
func (c *OAuthClient) SaveToken(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	return os.WriteFile(c.tokenFile, data, 0600)
}

// LoadToken reads a previously saved token
func (c *OAuthClient) LoadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// httpClient returns an auto-refreshing HTTP client for the token
func (c *OAuthClient) httpClient(ctx context.Context, token *oauth2.Token) *http.Client {
	return c.config.Client(ctx, token)
}

// localAuthServer handles the OAuth callback locally
type localAuthServer struct {
	server   *http.Server
	port     int
	codeChan chan string
	errChan  chan error
}

func newLocalAuthServer(port int) *localAuthServer {
	return &localAuthServer{
		port:     port,
		codeChan: make(chan string, 1),
		errChan:  make(chan error, 1),
	}
}

func (s *localAuthServer) start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", s.handleCallback)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.errChan <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)
	return nil
}

func (s *localAuthServer) waitForCode(timeout time.Duration) (string, error) {
	select {
	case code := <-s.codeChan:
		return code, nil
	case err := <-s.errChan:
		return "", err
	case <-time.After(timeout):
		return "", fmt.Errorf("OAuth timeout - no callback received within %v", timeout)
	}
}

func (s *localAuthServer) stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *localAuthServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		errMsg := r.URL.Query().Get("error")
		if errMsg == "" {
			errMsg = "unknown error"
		}
		s.errChan <- fmt.Errorf("OAuth error: %s", errMsg)
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}

	s.codeChan <- code

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `
		<!DOCTYPE html>
		<html>
		<head><title>Attune - Connected!</title></head>
		<body style="font-family: system-ui; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0;">
			<div style="text-align: center;">
				<h1>Connected!</h1>
				<p>Google Calendar and Gmail are now linked to Attune.</p>
				<p style="opacity: 0.8;">You can close this window and return to the terminal.</p>
			</div>
		</body>
		</html>
	`)
}
