package gam

import (
	"fmt"
)

// Credentials selects one of the two supported GAM auth methods. OAuth
// refresh tokens take precedence when both are configured.
type Credentials struct {
	NetworkCode string

	// OAuth refresh-token flow. ClientID/ClientSecret are platform-level;
	// the refresh token is per-tenant.
	RefreshToken string
	ClientID     string
	ClientSecret string

	// Service-account key file path, the fallback method.
	KeyFilePath string
}

// Method names the auth method the credentials resolve to.
type Method string

const (
	MethodOAuth          Method = "oauth"
	MethodServiceAccount Method = "service_account"
)

// Resolve validates the credentials and picks the auth method. Missing
// both methods fails adapter construction.
func (c Credentials) Resolve() (Method, error) {
	if c.NetworkCode == "" {
		return "", fmt.Errorf("gam credentials: network_code is required")
	}
	if c.RefreshToken != "" {
		if c.ClientID == "" || c.ClientSecret == "" {
			return "", fmt.Errorf("gam credentials: oauth refresh token configured without platform client_id/client_secret")
		}
		return MethodOAuth, nil
	}
	if c.KeyFilePath != "" {
		return MethodServiceAccount, nil
	}
	return "", fmt.Errorf("gam credentials: configure either an oauth refresh token or a service-account key file")
}
