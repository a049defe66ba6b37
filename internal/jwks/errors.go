package jwks

import (
	"errors"
	"fmt"
)

var (
	ErrDecode        = errors.New("decode_error")
	ErrNoMatchingKey = errors.New("no matching key in DB")
	ErrKeyGeneration = errors.New("key generation failed")
)

// DecodeError reports stored key bytes that are not a PKCS#1 RSA private key.
type DecodeError struct {
	Kid int64
	Err error
}

func (e *DecodeError) Error() string {
	if e.Kid != 0 {
		return fmt.Sprintf("decode private key kid=%d: %v", e.Kid, e.Err)
	}
	return fmt.Sprintf("decode private key: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}
