package keyboard

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CallbackDataSeparator  = ":"
	CallbackDataLimitBytes = 64
)

// ErrEmptyCallback is returned when a callback carries no data.
var ErrEmptyCallback = errors.New("callback data is empty")

// EncodeCallback joins an action and its payload into Telegram callback data.
func EncodeCallback(unique, data string) (string, error) {
	if unique == "" {
		return "", errors.New("callback action is empty")
	}
	if strings.Contains(unique, CallbackDataSeparator) {
		return "", fmt.Errorf("callback action %q contains separator", unique)
	}

	payload := unique
	if data != "" {
		payload = unique + CallbackDataSeparator + data
	}

	if len(payload) > CallbackDataLimitBytes {
		return "", fmt.Errorf("callback data exceeds %d byte limit: got %d", CallbackDataLimitBytes, len(payload))
	}

	return payload, nil
}

// DecodeCallback splits callback data at the first separator.
func DecodeCallback(callbackData string) (unique, data string, err error) {
	// telebot prefixes data of buttons registered with Unique
	callbackData = strings.TrimPrefix(callbackData, "\f")
	if callbackData == "" {
		return "", "", ErrEmptyCallback
	}

	idx := strings.Index(callbackData, CallbackDataSeparator)
	if idx == -1 {
		return callbackData, "", nil
	}

	return callbackData[:idx], callbackData[idx+len(CallbackDataSeparator):], nil
}
