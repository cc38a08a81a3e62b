package auth

import "context"

// APIKeyInfo resolves a validated API key to its tenant.
type APIKeyInfo struct {
	ID       string
	TenantID string
	KeyHash  string
	Name     string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
