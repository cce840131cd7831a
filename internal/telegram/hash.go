package telegram

import (
	"encoding/json"
	"errors"
	"net/url"
)

// WebAppUser is the "user" object of Mini App init data.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

func ParseUser(initData string) (*WebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}
	return userFromValues(values)
}

func userFromValues(values url.Values) (*WebAppUser, error) {
	raw := values.Get("user")
	if raw == "" {
		return nil, errors.New("init data has no user")
	}

	var user WebAppUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, err
	}
	if user.ID <= 0 {
		return nil, errors.New("init data user has no id")
	}
	return &user, nil
}
