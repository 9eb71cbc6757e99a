package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/settled/internal/domain"
)

// Recover returns the address that produced sigHex over msg.
func Recover(msg []byte, sigHex string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: signature hex: %w", err)
	}
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("crypto: signature is %d bytes, want 65", len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// Verify checks that sigHex over msg was made by address.
func Verify(address string, msg []byte, sigHex string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("crypto: %q is not an address: %w", address, domain.ErrUnauthorized)
	}
	got, err := Recover(msg, sigHex)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if got != common.HexToAddress(address) {
		return fmt.Errorf("crypto: signed by %s, not %s: %w", got.Hex(), address, domain.ErrUnauthorized)
	}
	return nil
}

// RequestMessage is what a caller signs to authenticate one API request.
func RequestMessage(method, path string, timestamp int64, bodyHash string) []byte {
	return []byte("settled:" + method + ":" + path + ":" + strconv.FormatInt(timestamp, 10) + ":" + bodyHash)
}

// BodyHash is the keccak256 of a request body, hex encoded.
func BodyHash(body []byte) string {
	return hex.EncodeToString(ethcrypto.Keccak256(body))
}

// RequestVerifier authenticates signed API requests.
type RequestVerifier struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

// ErrStaleRequest reports a request timestamp outside the allowed skew.
var ErrStaleRequest = errors.New("crypto: stale request timestamp")

// VerifyRequest checks the signature and freshness of a request and
// returns the normalized caller address.
func (v RequestVerifier) VerifyRequest(address, method, path string, timestamp int64, body []byte, sigHex string) (string, error) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	skew := now().Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if v.MaxSkew > 0 && skew > v.MaxSkew {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthorized, ErrStaleRequest)
	}
	if err := Verify(address, RequestMessage(method, path, timestamp, BodyHash(body)), sigHex); err != nil {
		return "", err
	}
	return common.HexToAddress(address).Hex(), nil
}
