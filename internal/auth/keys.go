package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const minSecretLength = 32

// SigningKey is an HMAC secret identified by the kid header it signs with
type SigningKey struct {
	ID     string
	Secret []byte
}

// KeyRing holds the current signing key and previous keys that are still accepted for verification
type KeyRing struct {
	current  SigningKey
	previous map[string][]byte
}

// NewKeyRing creates a key ring. Previous keys verify tokens but never sign new ones.
func NewKeyRing(current SigningKey, previous ...SigningKey) (*KeyRing, error) {
	if err := checkKey(current); err != nil {
		return nil, err
	}
	kr := &KeyRing{
		current:  current,
		previous: make(map[string][]byte, len(previous)),
	}
	for _, k := range previous {
		if err := checkKey(k); err != nil {
			return nil, err
		}
		if k.ID == current.ID {
			return nil, fmt.Errorf("key id %q is used by the current key", k.ID)
		}
		kr.previous[k.ID] = k.Secret
	}
	return kr, nil
}

func checkKey(k SigningKey) error {
	if k.ID == "" {
		return fmt.Errorf("signing key id is required")
	}
	if len(k.Secret) < minSecretLength {
		return fmt.Errorf("signing key %q must be at least %d bytes", k.ID, minSecretLength)
	}
	return nil
}

// ParseKeyList parses "kid:secret,kid:secret" as used by JWT_PREVIOUS_SECRETS
func ParseKeyList(s string) ([]SigningKey, error) {
	var keys []SigningKey
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, secret, ok := strings.Cut(part, ":")
		if !ok || id == "" || secret == "" {
			return nil, fmt.Errorf("invalid key entry %q, want kid:secret", part)
		}
		keys = append(keys, SigningKey{ID: id, Secret: []byte(secret)})
	}
	return keys, nil
}

// CurrentID returns the kid new tokens are signed with
func (k *KeyRing) CurrentID() string {
	return k.current.ID
}

func (k *KeyRing) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = k.current.ID
	return token.SignedString(k.current.Secret)
}

// keyFunc selects the verification key by kid
func (k *KeyRing) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	kid, _ := token.Header["kid"].(string)
	if kid == k.current.ID {
		return k.current.Secret, nil
	}
	if secret, ok := k.previous[kid]; ok {
		return secret, nil
	}
	return nil, fmt.Errorf("unknown signing key %q", kid)
}
