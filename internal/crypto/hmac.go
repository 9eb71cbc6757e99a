package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// AdminAuth authenticates operator-only endpoints with
// HMAC-SHA256(secret, timestamp+method+path+body), base64 encoded.
type AdminAuth struct {
	Secret  string
	MaxSkew time.Duration
}

// Sign computes the signature of a request made at unixTS.
func (a AdminAuth) Sign(method, path, body string, unixTS int64) string {
	mac := hmac.New(sha256.New, []byte(a.Secret))
	mac.Write([]byte(strconv.FormatInt(unixTS, 10) + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is valid and fresh at now.
func (a AdminAuth) Verify(method, path, body string, unixTS int64, sig string, now time.Time) bool {
	if a.Secret == "" {
		return false
	}
	if a.MaxSkew > 0 {
		d := now.Sub(time.Unix(unixTS, 0))
		if d < -a.MaxSkew || d > a.MaxSkew {
			return false
		}
	}
	return hmac.Equal([]byte(sig), []byte(a.Sign(method, path, body, unixTS)))
}
