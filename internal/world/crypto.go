package world

import (
	"time"

	"github.com/pquerna/otp/totp"
)

// currentTOTP derives the current 6-digit, 30-second-step RFC 6238 code
// for a base32 secret as of worldTickMs, giving the crypto intrinsic a
// deterministic, world-clock-driven answer instead of wall-clock time.
func currentTOTP(secretBase32 string, worldTickMs int64) (string, error) {
	return totp.GenerateCode(secretBase32, time.UnixMilli(worldTickMs))
}
