package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

const (
	DefaultKeyBits       = 2048
	AlgorithmRS256       = "RS256"
	pemTypeRSAPrivateKey = "RSA PRIVATE KEY"
	publicExponent65537  = 65537
)

// GenerateKeyPair creates an RSA key with public exponent 65537.
func GenerateKeyPair(bits int) (*rsa.PrivateKey, error) {
	if bits <= 0 {
		bits = DefaultKeyBits
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGeneration, err)
	}
	if key.PublicKey.E != publicExponent65537 {
		return nil, fmt.Errorf("%w: unexpected public exponent %d", ErrKeyGeneration, key.PublicKey.E)
	}
	return key, nil
}

// EncodePrivateKey serializes the key as an unencrypted PKCS#1 PEM block.
func EncodePrivateKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  pemTypeRSAPrivateKey,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func DecodePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &DecodeError{Err: errors.New("invalid PEM")}
	}
	if block.Type != pemTypeRSAPrivateKey {
		return nil, &DecodeError{Err: fmt.Errorf("unsupported key type: %s", block.Type)}
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return key, nil
}

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// RSAJWK encodes n and e as minimal big-endian bytes, base64url without padding.
func RSAJWK(kid, alg string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Alg: alg,
		Kid: kid,
		N:   b64(pub.N.Bytes()),
		E:   b64(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func ToPublicJWK(kid int64, key *rsa.PrivateKey) JWK {
	return RSAJWK(strconv.FormatInt(kid, 10), AlgorithmRS256, &key.PublicKey)
}
