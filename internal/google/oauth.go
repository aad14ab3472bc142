package google

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// DefaultScopes are the scopes bookcal's stored credentials are issued for.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar",
	"https://www.googleapis.com/auth/calendar.events",
}

// NewOAuthConfig returns the OAuth2 client configuration used to refresh
// stored Google credentials.
func NewOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       DefaultScopes,
	}
}

// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
const DefaultTokenLifetime = 3600 // seconds
