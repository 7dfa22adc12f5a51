package apple

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier decodes the signed payloads Apple delivers. Implementations must
// validate the x5c certificate chain before trusting the claims.
type Verifier interface {
	VerifyNotification(signedPayload string) (*Notification, error)
	VerifyTransaction(signedTransaction string) (*Transaction, error)
}

// JWSVerifier validates App Store JWS payloads: ES256 signatures whose
// signing certificate is carried in the x5c header and chains to Apple's
// root CA.
type JWSVerifier struct {
	roots *x509.CertPool
}

// NewJWSVerifier loads the Apple root certificate from rootCAPath. An empty
// path skips chain validation, which is acceptable only against the sandbox.
func NewJWSVerifier(rootCAPath string) (*JWSVerifier, error) {
	if rootCAPath == "" {
		return &JWSVerifier{}, nil
	}

	pem, err := os.ReadFile(rootCAPath)
	if err != nil {
		return nil, fmt.Errorf("reading apple root ca: %w", err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		// The root may be distributed in raw DER instead of PEM.
		cert, derErr := x509.ParseCertificate(pem)
		if derErr != nil {
			return nil, fmt.Errorf("parsing apple root ca: %w", derErr)
		}
		roots.AddCert(cert)
	}
	return &JWSVerifier{roots: roots}, nil
}

func (v *JWSVerifier) VerifyNotification(signedPayload string) (*Notification, error) {
	var notification Notification
	if err := v.decode(signedPayload, &notification); err != nil {
		return nil, err
	}
	return &notification, nil
}

func (v *JWSVerifier) VerifyTransaction(signedTransaction string) (*Transaction, error) {
	var transaction Transaction
	if err := v.decode(signedTransaction, &transaction); err != nil {
		return nil, err
	}
	return &transaction, nil
}

// decode verifies the JWS and unmarshals its claims into out.
func (v *JWSVerifier) decode(signedPayload string, out any) error {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"ES256"}))
	token, err := parser.Parse(signedPayload, func(token *jwt.Token) (any, error) {
		return v.signingKey(token)
	})
	if err != nil {
		return fmt.Errorf("verifying signed payload: %w", err)
	}
	if !token.Valid {
		return errors.New("signed payload failed verification")
	}

	parts := strings.Split(signedPayload, ".")
	if len(parts) != 3 {
		return errors.New("signed payload is not a compact JWS")
	}
	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("decoding payload claims: %w", err)
	}
	if err := json.Unmarshal(claims, out); err != nil {
		return fmt.Errorf("unmarshalling payload claims: %w", err)
	}
	return nil
}

// signingKey extracts the leaf certificate from the x5c header and, when a
// root pool is configured, verifies the chain up to it.
func (v *JWSVerifier) signingKey(token *jwt.Token) (*ecdsa.PublicKey, error) {
	raw, ok := token.Header["x5c"].([]any)
	if !ok || len(raw) == 0 {
		return nil, errors.New("signed payload missing x5c header")
	}

	chain := make([]*x509.Certificate, 0, len(raw))
	for _, entry := range raw {
		encoded, ok := entry.(string)
		if !ok {
			return nil, errors.New("malformed x5c entry")
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding x5c certificate: %w", err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parsing x5c certificate: %w", err)
		}
		chain = append(chain, cert)
	}

	if v.roots != nil {
		intermediates := x509.NewCertPool()
		for _, cert := range chain[1:] {
			intermediates.AddCert(cert)
		}
		if _, err := chain[0].Verify(x509.VerifyOptions{
			Roots:         v.roots,
			Intermediates: intermediates,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		}); err != nil {
			return nil, fmt.Errorf("verifying x5c chain: %w", err)
		}
	}

	key, ok := chain[0].PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("x5c leaf does not carry an ECDSA key")
	}
	return key, nil
}
