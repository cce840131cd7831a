package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InitDataMaxAge bounds how old a Mini App launch may be.
const InitDataMaxAge = time.Hour

// ValidateTelegramInitData verifies the Mini App init data signature
// (secret = HMAC_SHA256("WebAppData", bot_token)) and rejects stale
// auth_date values.
func ValidateTelegramInitData(initData, botToken string) (url.Values, bool) {
	return validateInitDataAt(initData, botToken, time.Now())
}

func validateInitDataAt(initData, botToken string, now time.Time) (url.Values, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, false
	}

	hash := values.Get("hash")
	if hash == "" {
		return nil, false
	}
	values.Del("hash")

	provided, err := hex.DecodeString(hash)
	if err != nil {
		return nil, false
	}
	if !hmac.Equal(signInitData(values, botToken), provided) {
		return nil, false
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, false
	}

	age := now.Unix() - authDate
	// small clock skew is fine
	if age > int64(InitDataMaxAge/time.Second) || age < -300 {
		return nil, false
	}

	return values, true
}

func signInitData(values url.Values, botToken string) []byte {
	dataCheck := make([]string, 0, len(values))
	for k, v := range values {
		dataCheck = append(dataCheck, k+"="+strings.Join(v, ""))
	}
	sort.Strings(dataCheck)

	keyMac := hmac.New(sha256.New, []byte("WebAppData"))
	keyMac.Write([]byte(botToken))

	h := hmac.New(sha256.New, keyMac.Sum(nil))
	h.Write([]byte(strings.Join(dataCheck, "\n")))
	return h.Sum(nil)
}
