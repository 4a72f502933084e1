package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const linkSigLen = 16 // hex chars of the HMAC kept in the URL

// SignedDownloadURL builds a time-boxed lead-magnet link. The signature is
// the first 16 hex chars of HMAC-SHA256 over "{leadID}:{expiry}" where
// expiry is a millisecond epoch.
func SignedDownloadURL(base string, leadID int64, expiry time.Time, secret string) string {
	exp := expiry.UnixMilli()
	sig := downloadSig(leadID, exp, secret)

	query := url.Values{}
	query.Set("lead", strconv.FormatInt(leadID, 10))
	query.Set("exp", strconv.FormatInt(exp, 10))
	query.Set("sig", sig)

	return base + "?" + query.Encode()
}

// VerifyDownloadSig validates a link's signature and expiry.
func VerifyDownloadSig(leadID int64, exp int64, sig string, secret string, now time.Time) bool {
	if now.UnixMilli() > exp {
		return false
	}
	expected := downloadSig(leadID, exp, secret)
	return hmac.Equal([]byte(sig), []byte(expected))
}

func downloadSig(leadID, exp int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%d", leadID, exp)
	return hex.EncodeToString(mac.Sum(nil))[:linkSigLen]
}
