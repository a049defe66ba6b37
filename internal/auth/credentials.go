package auth

import (
	"errors"
	"strconv"
	"strings"
)

// DefaultUsername is the subject when the caller supplies no username.
const DefaultUsername = "userABC"

var ErrInvalidExpiredFlag = errors.New("invalid expired flag")

type AuthRequest struct {
	Username string `json:"username" xml:"username" validate:"omitempty,max=255"`
	Password string `json:"password" xml:"password" validate:"max=1024"`
}

type BasicCredentials struct {
	Username string
	Password string
}

// ResolveSubject picks the basic-auth username, then the body username, then DefaultUsername.
// Empty usernames are skipped.
func ResolveSubject(basic *BasicCredentials, body *AuthRequest) string {
	if basic != nil && basic.Username != "" {
		return basic.Username
	}
	if body != nil && body.Username != "" {
		return body.Username
	}
	return DefaultUsername
}

// ParseExpiredFlag interprets the "expired" query parameter. A bare flag means true;
// otherwise the value is a boolean or an integer where non-zero means true.
func ParseExpiredFlag(value string, present bool) (bool, error) {
	if !present {
		return false, nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return true, nil
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b, nil
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n != 0, nil
	}
	return false, ErrInvalidExpiredFlag
}
