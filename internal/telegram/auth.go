package telegram

import (
	"errors"
	"net/url"

	"clicker_ledger/internal/service"
)

const maxInitDataLen = 4096

var (
	ErrInitDataTooLong = errors.New("init_data too long")
	ErrInvalidInitData = errors.New("invalid or stale telegram data")
)

// Launch is what a verified Mini App launch tells us about the player.
type Launch struct {
	User       *WebAppUser
	StartParam string
}

// Verify checks the init data signature and extracts the user. With
// skipSignature set (dev mode) the data is parsed without verification.
func Verify(initData, botToken string, skipSignature bool) (*Launch, error) {
	if len(initData) > maxInitDataLen {
		return nil, ErrInitDataTooLong
	}

	var values url.Values
	if skipSignature {
		v, err := url.ParseQuery(initData)
		if err != nil {
			return nil, ErrInvalidInitData
		}
		values = v
	} else {
		v, ok := service.ValidateTelegramInitData(initData, botToken)
		if !ok {
			return nil, ErrInvalidInitData
		}
		values = v
	}

	user, err := userFromValues(values)
	if err != nil {
		return nil, err
	}
	return &Launch{User: user, StartParam: values.Get("start_param")}, nil
}
