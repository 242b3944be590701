package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrTokenInvalid wraps every parse or validation failure.
	ErrTokenInvalid = errors.New("identity token invalid")
	// ErrNoSigningKey is returned by CreateIdentity on a verify-only manager.
	ErrNoSigningKey = errors.New("no signing key configured")
)

// Config configures a [Manager].
//
// PrivateKey signs (and, for HS256, verifies). KeyID is stamped on issued
// tokens. VerifyKeys, when set, replaces the single verification key with a
// kid-indexed set so keys can rotate; tokens must then name one of them.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte

	// Now defaults to time.Now.
	Now func() time.Time
}

// IdentityClaims name the user and the organization a request acts for.
// Permissions are never carried in the token; they are resolved per request.
type IdentityClaims struct {
	UID  string `json:"uid"`
	OID  string `json:"oid"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies identity tokens. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	method jwt.SigningMethod
	sign   any
	verify map[string]any
	parser *jwt.Parser
}

// NewManager validates cfg, decodes its keys and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.TTL <= 0 {
		return nil, errors.New("TTL must be > 0")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("Leeway must be within [0, 2m]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("MaxFutureIAT must be within (0, 24h]")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{cfg: cfg, verify: make(map[string]any)}
	var err error
	switch cfg.SigningMethod {
	case MethodHS256:
		err = m.loadHMAC()
	case MethodEd25519:
		err = m.loadEd25519()
	default:
		err = fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	if err != nil {
		return nil, err
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := m.verify[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

func (m *Manager) loadHMAC() error {
	m.method = jwt.SigningMethodHS256
	if len(m.cfg.PrivateKey) < 32 {
		return errors.New("hs256 requires a key of at least 32 bytes")
	}
	m.sign = m.cfg.PrivateKey

	if len(m.cfg.VerifyKeys) == 0 {
		m.verify[m.cfg.KeyID] = m.cfg.PrivateKey
		return nil
	}
	for kid, key := range m.cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("VerifyKeys contains an empty kid")
		}
		if len(key) < 32 {
			return fmt.Errorf("hs256 verify key %q shorter than 32 bytes", kid)
		}
		m.verify[kid] = key
	}
	return nil
}

func (m *Manager) loadEd25519() error {
	m.method = jwt.SigningMethodEdDSA
	if len(m.cfg.PrivateKey) > 0 {
		priv, err := parseEdPrivateKey(m.cfg.PrivateKey)
		if err != nil {
			return err
		}
		m.sign = priv
	}

	if len(m.cfg.VerifyKeys) == 0 {
		if len(m.cfg.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
		pub, err := parseEdPublicKey(m.cfg.PublicKey)
		if err != nil {
			return err
		}
		m.verify[m.cfg.KeyID] = pub
		return nil
	}
	for kid, key := range m.cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return errors.New("VerifyKeys contains an empty kid")
		}
		pub, err := parseEdPublicKey(key)
		if err != nil {
			return fmt.Errorf("ed25519 verify key %q: %w", kid, err)
		}
		m.verify[kid] = pub
	}
	return nil
}

// CreateIdentity signs a token for userID acting in organizationID.
func (m *Manager) CreateIdentity(userID, organizationID, role string) (string, error) {
	if userID == "" || organizationID == "" {
		return "", errors.New("identity requires user and organization")
	}
	if m.sign == nil {
		return "", ErrNoSigningKey
	}

	now := m.cfg.Now()
	claims := IdentityClaims{
		UID:  userID,
		OID:  organizationID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.TTL)),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.cfg.KeyID != "" {
		token.Header["kid"] = m.cfg.KeyID
	}
	return token.SignedString(m.sign)
}

// ParseIdentity verifies tokenStr and returns its claims. Tokens without both
// ids, or issued too far in the future, are rejected.
func (m *Manager) ParseIdentity(tokenStr string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UID == "" || claims.OID == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrTokenInvalid)
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.cfg.Now().Add(m.cfg.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
	}
	return claims, nil
}

// keyFor looks the verification key up by the token's kid. A manager without
// KeyID or VerifyKeys only accepts tokens that carry no kid.
func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	key, ok := m.verify[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
