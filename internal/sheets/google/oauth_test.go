package google

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	gsheet "google.golang.org/api/sheets/v4"
)

const installedClient = `{"installed":{"client_id":"tablero.apps.googleusercontent.com","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig([]byte(installedClient), "http://localhost:8085/callback")
	require.NoError(t, err)
	assert.Equal(t, "tablero.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, "http://localhost:8085/callback", cfg.RedirectURL)
	assert.Equal(t, []string{gsheet.SpreadsheetsReadonlyScope}, cfg.Scopes)

	_, err = OAuthConfig([]byte(`{}`), "")
	assert.Error(t, err)
}

func TestSaveAndLoadToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, SaveToken(path, tok))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.True(t, tok.Expiry.Equal(got.Expiry))

	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0600))
	_, err = LoadToken(path)
	assert.ErrorContains(t, err, "no token")

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorContains(t, err, "read token file")
}

func TestNew_WithOAuthToken(t *testing.T) {
	dir := t.TempDir()
	clientFile := filepath.Join(dir, "client.json")
	tokenFile := filepath.Join(dir, "token.json")
	require.NoError(t, os.WriteFile(clientFile, []byte(installedClient), 0600))
	require.NoError(t, SaveToken(tokenFile, &oauth2.Token{RefreshToken: "refresh"}))

	cli, err := New(context.Background(), Options{
		SpreadsheetID:   "sheet",
		OAuthClientFile: clientFile,
		OAuthTokenFile:  tokenFile,
	})
	require.NoError(t, err)
	assert.NotNil(t, cli)

	_, err = New(context.Background(), Options{SpreadsheetID: "sheet", OAuthTokenFile: tokenFile})
	assert.ErrorContains(t, err, "oauth client file")
}
