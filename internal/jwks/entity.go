package jwks

import (
	"strconv"
	"time"
)

// KeyRecord is one row of the keys table. Kid is assigned by the store and Key holds
// the PKCS#1 PEM private key; records are never updated after insert.
type KeyRecord struct {
	Kid int64  `gorm:"column:kid;primaryKey;autoIncrement" bson:"kid" json:"kid"`
	Key []byte `gorm:"column:key;not null" bson:"key" json:"-"`
	Exp int64  `gorm:"column:exp;not null;index" bson:"exp" json:"exp"`
}

func (KeyRecord) TableName() string {
	return "keys"
}

// IsValid reports exp > now; a key expiring exactly now is expired.
func (r KeyRecord) IsValid(now time.Time) bool {
	return r.Exp > now.Unix()
}

func (r KeyRecord) KidString() string {
	return strconv.FormatInt(r.Kid, 10)
}

type ValidityCounts struct {
	Valid   int64 `json:"valid" gorm:"column:valid"`
	Expired int64 `json:"expired" gorm:"column:expired"`
}

func (c ValidityCounts) Total() int64 {
	return c.Valid + c.Expired
}

type JWK struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type JWKS struct {
	Keys []JWK `json:"keys"`
}

func (j JWKS) Contains(kid string) bool {
	for _, k := range j.Keys {
		if k.Kid == kid {
			return true
		}
	}
	return false
}

type IssuedToken struct {
	Token   string `json:"token"`
	Kid     string `json:"kid"`
	KeyExp  int64  `json:"key_exp"`
	Expired bool   `json:"expired"`
}
