package twofactor

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/khanghh/kadmin/params"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var totpOpts = totp.ValidateOpts{
	Period:    params.MFATOTPPeriod,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPKey is a freshly generated authenticator secret.
type TOTPKey struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

func generateTOTPKey(accountName string) (*TOTPKey, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      params.MFAIssuer,
		AccountName: accountName,
		Period:      params.MFATOTPPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPKey{Secret: key.Secret(), URL: key.URL()}, nil
}

func totpStep(t time.Time) int64 {
	return t.Unix() / params.MFATOTPPeriod
}

// VerifyTOTP checks code against the current time step and its neighbours. It
// returns the matched step so callers can reject replays.
func VerifyTOTP(secret, code string, at time.Time) (int64, bool) {
	code = strings.TrimSpace(code)
	if len(code) != int(otp.DigitsSix) {
		return 0, false
	}
	current := totpStep(at)
	for offset := int64(-params.MFATOTPSkew); offset <= params.MFATOTPSkew; offset++ {
		step := current + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*params.MFATOTPPeriod, 0), totpOpts)
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return step, true
		}
	}
	return 0, false
}

func looksLikeTOTP(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != int(otp.DigitsSix) {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
