package idempotency

import "strconv"

// CallbackKey identifies a button press. Telegram redelivers the same callback id on retries.
func CallbackKey(callbackID string) string {
	return "cb:" + callbackID
}

// MessageKey identifies a command message, unique per chat.
func MessageKey(chatID int64, messageID int) string {
	return "msg:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}
