package auth

import "context"

// Static is a fixed bearer token for API-key-only deployments.
type Static string

// Token returns the fixed token.
func (s Static) Token(context.Context) (string, error) {
	return string(s), nil
}

// ForceRefresh returns the fixed token; there is nothing to refresh.
func (s Static) ForceRefresh(context.Context) (string, error) {
	return string(s), nil
}
