package delivery

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"github.com/go-fed/httpsig"

	"github.com/d60-Lab/fedigraph/internal/model"
)

// Signer produces a transport-ready signed request for one destination
// protocol. The signing actor is always local and carries its private key.
type Signer interface {
	Sign(req *http.Request, from *model.Actor, body []byte) error
}

// SignerRegistry dispatches on the destination actor's protocol.
type SignerRegistry map[string]Signer

// DefaultSigners wires one signer per supported federation protocol.
func DefaultSigners() SignerRegistry {
	return SignerRegistry{
		model.ProtocolActivityPub: &HTTPSignatureSigner{},
		model.ProtocolOStatus:     &SalmonSigner{},
	}
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("signer: no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signer: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signer: unsupported private key type %T", parsed)
	}
	return key, nil
}

// HTTPSignatureSigner signs ActivityPub deliveries with an HTTP signature
// over (request-target), host, date and digest.
type HTTPSignatureSigner struct{}

func (s *HTTPSignatureSigner) Sign(req *http.Request, from *model.Actor, body []byte) error {
	key, err := parsePrivateKey(from.PrivateKeyPEM)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/activity+json")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "host", "date", "digest"},
		httpsig.Signature,
		0,
	)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	keyID := from.ActorURI + "#main-key"
	return signer.SignRequest(crypto.PrivateKey(key), keyID, req, body)
}

// SalmonSigner covers legacy OStatus salmon endpoints. The full magic
// envelope encoding is a codec concern outside this core; we attach an
// RSA-SHA256 signature of the payload so the transport is not unsigned.
type SalmonSigner struct{}

func (s *SalmonSigner) Sign(req *http.Request, from *model.Actor, body []byte) error {
	key, err := parsePrivateKey(from.PrivateKeyPEM)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(body)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		return fmt.Errorf("signer: salmon sign: %w", err)
	}
	req.Header.Set("Content-Type", "application/magic-envelope+xml")
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("X-Salmon-Signature", base64.URLEncoding.EncodeToString(sig))
	return nil
}
