package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/semmidev/dbkeeper/internal/infrastructure/logger"
)

// DriveAuthorizer runs the browser consent flow for the Google Drive upload
// target and stores the result as an authorized_user credentials file.
type DriveAuthorizer struct {
	config     *oauth2.Config
	logger     *logger.Logger
	outputPath string
	state      string

	server *http.Server
	done   chan error
}

// authorizedUser is the credentials file layout understood by
// option.WithCredentialsFile.
type authorizedUser struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
}

func NewDriveAuthorizer(log *logger.Logger, clientSecretPath, outputPath string) (*DriveAuthorizer, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" {
		return nil, errors.New("client secret path cannot be empty")
	}
	if outputPath == "" {
		return nil, errors.New("output path cannot be empty")
	}

	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return &DriveAuthorizer{
		config:     cfg,
		logger:     log,
		outputPath: outputPath,
		state:      uuid.NewString(),
		done:       make(chan error, 1),
	}, nil
}

// Start listens on addr and points the redirect URL at it. The returned URL is
// the page the user should open.
func (a *DriveAuthorizer) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	base := "http://" + ln.Addr().String()
	a.config.RedirectURL = base + "/auth/google/callback"

	a.server = &http.Server{
		Handler:           a.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Infof("Google Drive OAuth server listening on %s", ln.Addr())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("OAuth server error: %v", err)
			a.finish(err)
		}
	}()

	return base + "/auth/google/drive", nil
}

func (a *DriveAuthorizer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := a.config.AuthCodeURL(a.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != a.state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := a.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusInternalServerError)
			return
		}
		if token.RefreshToken == "" {
			fmt.Fprintln(w, "⚠️ No refresh token returned. Revoke app access & re-authorize.")
			return
		}

		if err := a.save(token.RefreshToken); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			a.finish(err)
			return
		}

		fmt.Fprintf(w, "✅ Credentials saved to %s. You can close this window.\n", a.outputPath)
		a.finish(nil)
	})

	return mux
}

func (a *DriveAuthorizer) save(refreshToken string) error {
	data, err := json.MarshalIndent(authorizedUser{
		Type:         "authorized_user",
		ClientID:     a.config.ClientID,
		ClientSecret: a.config.ClientSecret,
		RefreshToken: refreshToken,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(a.outputPath), 0700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := atomic.WriteFile(a.outputPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := os.Chmod(a.outputPath, 0600); err != nil {
		return fmt.Errorf("failed to restrict credentials: %w", err)
	}

	a.logger.Infof("✓ Google Drive credentials written to %s", a.outputPath)
	return nil
}

func (a *DriveAuthorizer) finish(err error) {
	select {
	case a.done <- err:
	default:
	}
}

// Wait blocks until credentials were saved, the flow failed, or ctx ends.
func (a *DriveAuthorizer) Wait(ctx context.Context) error {
	select {
	case err := <-a.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *DriveAuthorizer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}

	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	a.logger.Infof("OAuth server stopped")
	return nil
}
