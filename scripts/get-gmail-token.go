package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

const (
	callbackAddr = "localhost:8090"
	envFile      = "gmail.env"
)

func main() {
	// GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET may come from .env
	_ = godotenv.Load()

	clientID := os.Getenv("GMAIL_CLIENT_ID")
	clientSecret := os.Getenv("GMAIL_CLIENT_SECRET")
	if len(os.Args) == 3 {
		clientID, clientSecret = os.Args[1], os.Args[2]
	}

	if clientID == "" || clientSecret == "" {
		fmt.Println("Usage: go run get-gmail-token.go [<client-id> <client-secret>]")
		fmt.Println("\nObtains a Gmail API refresh token that lets portal-relay send mail")
		fmt.Println("with mail.transport=gmail. Without arguments GMAIL_CLIENT_ID and")
		fmt.Println("GMAIL_CLIENT_SECRET are read from the environment or .env.")
		os.Exit(1)
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://" + callbackAddr + "/callback",
		Scopes:       []string{gmail.GmailSendScope},
	}

	state := uuid.NewString()
	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("\n=== Gmail OAuth2 Token Generator ===")
	fmt.Println("\n1. Visit this URL in your browser:")
	fmt.Printf("\n%s\n", authURL)

	codes := make(chan string, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "no authorization code received", http.StatusBadRequest)
			return
		}

		fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this window.</p></body></html>")
		select {
		case codes <- code:
		default:
		}
	})

	server := &http.Server{Addr: callbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	fmt.Printf("\n2. After authorizing you'll be redirected to http://%s/callback\n", callbackAddr)
	fmt.Println("\nWaiting for authorization...")

	code := <-codes

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)

	token, err := config.Exchange(context.Background(), code)
	if err != nil {
		log.Fatalf("Failed to exchange token: %v", err)
	}
	if token.RefreshToken == "" {
		log.Fatal("No refresh token returned; revoke the app's access and try again")
	}

	env := map[string]string{
		"PORTAL_RELAY_MAIL_TRANSPORT": "gmail",
		"GMAIL_CLIENT_ID":             clientID,
		"GMAIL_CLIENT_SECRET":         clientSecret,
		"GMAIL_REFRESH_TOKEN":         token.RefreshToken,
	}
	if err := godotenv.Write(env, envFile); err != nil {
		log.Printf("Warning: could not write %s: %v", envFile, err)
	} else {
		fmt.Printf("\nSettings saved to %s; use it with portal-relay --env-file %s\n", envFile, envFile)
	}

	fmt.Println("\n=== Configuration for portal-relay ===")
	fmt.Println("\nAdd these to your .env file or export as environment variables:")
	for _, key := range []string{"PORTAL_RELAY_MAIL_TRANSPORT", "GMAIL_CLIENT_ID", "GMAIL_CLIENT_SECRET", "GMAIL_REFRESH_TOKEN"} {
		fmt.Printf("%s=%s\n", key, env[key])
	}
}
