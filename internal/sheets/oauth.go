package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/sheets/v4"
)

const (
	authState           = "trucks-sheets-export"
	defaultCallbackAddr = "localhost:8080"
	defaultAuthTimeout  = 5 * time.Minute
)

// AuthConfig describes how the export command obtains a Sheets refresh token.
type AuthConfig struct {
	ClientID     string
	ClientSecret string

	// TokenFile caches the token between runs. Empty disables caching.
	TokenFile string

	// CallbackAddr is the host:port the browser is redirected to.
	CallbackAddr string

	Timeout time.Duration

	// Prompt receives the consent URL. Nil discards it.
	Prompt io.Writer
}

func (c AuthConfig) callbackAddr() string {
	if c.CallbackAddr == "" {
		return defaultCallbackAddr
	}
	return c.CallbackAddr
}

func (c AuthConfig) oauth() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://" + c.callbackAddr() + "/callback",
		Scopes:       []string{sheets.SpreadsheetsScope},
	}
}

// Authorize returns a token for the export spreadsheet. A cached token is
// reused (and refreshed when expired); otherwise the browser consent flow runs.
func Authorize(ctx context.Context, cfg AuthConfig) (*oauth2.Token, error) {
	if cfg.TokenFile != "" {
		cached, err := LoadToken(cfg.TokenFile)
		switch {
		case err == nil:
			return refresh(ctx, cfg, cached)
		case !errors.Is(err, os.ErrNotExist):
			slog.Warn("Ignoring unreadable Sheets token", "file", cfg.TokenFile, "error", err)
		}
	}

	token, err := consent(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.TokenFile != "" {
		if err := saveToken(cfg.TokenFile, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}

func refresh(ctx context.Context, cfg AuthConfig, token *oauth2.Token) (*oauth2.Token, error) {
	if token.Valid() {
		return token, nil
	}

	fresh, err := cfg.oauth().TokenSource(ctx, token).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh Sheets token: %w", err)
	}
	if cfg.TokenFile != "" && fresh.AccessToken != token.AccessToken {
		if err := saveToken(cfg.TokenFile, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

func consent(ctx context.Context, cfg AuthConfig) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", cfg.callbackAddr())
	if err != nil {
		return nil, fmt.Errorf("failed to listen for OAuth callback on %s: %w", cfg.callbackAddr(), err)
	}

	codes := make(chan string, 1)
	failures := make(chan error, 1)
	server := &http.Server{
		Handler:           callbackHandler(codes, failures),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failures <- fmt.Errorf("OAuth callback server stopped: %w", err)
		}
	}()
	defer func() { _ = server.Close() }()

	oc := cfg.oauth()
	if cfg.Prompt != nil {
		fmt.Fprintf(cfg.Prompt, "Open this URL to grant access to the export spreadsheet:\n\n  %s\n\n",
			oc.AuthCodeURL(authState, oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAuthTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var code string
	select {
	case code = <-codes:
	case err := <-failures:
		return nil, err
	case <-timer.C:
		return nil, fmt.Errorf("no OAuth callback within %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return token, nil
}

// callbackHandler accepts a single redirect from Google's consent screen.
func callbackHandler(codes chan<- string, failures chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var err error
		switch {
		case q.Get("state") != authState:
			err = errors.New("OAuth callback carried an unexpected state")
		case q.Get("error") != "":
			err = fmt.Errorf("consent denied: %s", q.Get("error"))
		case q.Get("code") == "":
			err = errors.New("OAuth callback carried no authorization code")
		}
		if err != nil {
			select {
			case failures <- err:
			default:
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		select {
		case codes <- q.Get("code"):
		default:
		}
		_, _ = io.WriteString(w, "Sheets access granted. You can close this tab.\n")
	})
	return mux
}

// LoadToken reads a cached token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{}
	if err := json.Unmarshal(data, token); err != nil {
		return nil, fmt.Errorf("failed to decode token %s: %w", path, err)
	}
	return token, nil
}

// saveToken replaces the cached token file atomically.
func saveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}
