package delivery

import "regexp"

var reChatID = regexp.MustCompile(`^-?\d+$`)

// ValidChatID reports whether id is a (optionally negative) integer, as
// chat-bot APIs expect. Group chats use negative ids.
func ValidChatID(id string) bool {
	return reChatID.MatchString(id)
}
