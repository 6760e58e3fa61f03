// oauth-init obtains a read-only Google Sheets token for the sheets backend when
// the office account cannot use a service account.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"tablero/internal/cli"
	applog "tablero/internal/log"
	gsheet "tablero/internal/sheets/google"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentSheets)

	clientFile := os.Getenv("GOOGLE_OAUTH_CLIENT_FILE")
	if clientFile == "" {
		logger.Error("Set GOOGLE_OAUTH_CLIENT_FILE to the OAuth client secret file")
		os.Exit(1)
	}
	clientJSON, err := os.ReadFile(clientFile)
	if err != nil {
		logger.Error("Failed to read OAuth client file", "error", err, "path", clientFile)
		os.Exit(1)
	}

	// The redirect URI must be registered on the OAuth client.
	port := os.Getenv("OAUTH_REDIRECT_PORT")
	if port == "" {
		port = "8085"
	}
	cfg, err := gsheet.OAuthConfig(clientJSON, "http://localhost:"+port+"/callback")
	if err != nil {
		logger.Error("Invalid OAuth client file", "error", err)
		os.Exit(1)
	}

	outFile := os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")
	if outFile == "" {
		outFile = "token.json"
	}

	state := uuid.NewString()
	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			http.Error(w, "OAuth error: "+e, http.StatusBadRequest)
			return
		}
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Autorización completada. Puede cerrar esta ventana.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	srv := &http.Server{Addr: net.JoinHostPort("localhost", port), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Callback server failed", "error", err)
		}
	}()
	defer srv.Close()

	fmt.Printf("Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	select {
	case code := <-codeCh:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			logger.Error("Token exchange failed", "error", err)
			os.Exit(1)
		}
		if err := gsheet.SaveToken(outFile, tok); err != nil {
			logger.Error("Failed to save token", "error", err)
			os.Exit(1)
		}
		logger.Info("Saved token", "path", outFile)
	case <-ctx.Done():
		logger.Error("Authorization not completed", "reason", context.Cause(ctx))
		os.Exit(1)
	}
}
