package domain

import (
	"fmt"
	"strings"
)

type AuthMethod string

const (
	AuthMethodToken   AuthMethod = "token"
	AuthMethodSession AuthMethod = "session"
)

func ParseAuthMethod(raw string) (AuthMethod, error) {
	method := AuthMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case AuthMethodToken, AuthMethodSession:
		return method, nil
	default:
		return "", fmt.Errorf("unknown auth method %q", raw)
	}
}

type Auth struct {
	Method AuthMethod
	// SecretRef is the secret-store key holding the credential.
	SecretRef string
}

// SecretKey is the secret-store key an account credential is stored under.
func SecretKey(id AccountID, method AuthMethod) string {
	return fmt.Sprintf("botfleet/accounts/%s/%s", id, method)
}
