package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuthConfig builds the installed-app OAuth config from a client secret file's
// contents. The scope is read-only.
func OAuthConfig(clientJSON []byte, redirectURL string) (*oauth2.Config, error) {
	cfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth client config: %w", err)
	}
	cfg.RedirectURL = redirectURL
	return cfg, nil
}

// SaveToken writes tok to path, readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// LoadToken reads a token written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token file: %w", err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, errors.New("token file holds no token")
	}
	return &tok, nil
}

// oauthOption authenticates as the user who ran oauth-init. The token is
// refreshed in memory; the file is not rewritten.
func oauthOption(ctx context.Context, opts Options) (goption.ClientOption, error) {
	clientJSON, err := os.ReadFile(strings.TrimSpace(opts.OAuthClientFile))
	if err != nil {
		return nil, fmt.Errorf("read oauth client file: %w", err)
	}
	cfg, err := OAuthConfig(clientJSON, "")
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(strings.TrimSpace(opts.OAuthTokenFile))
	if err != nil {
		return nil, err
	}
	return goption.WithTokenSource(cfg.TokenSource(ctx, tok)), nil
}
