package core

// Events sent by clients.
const (
	JoinEvent       = "join"
	SetAnonEvent    = "set_anon"
	TypingEvent     = "typing"
	StopTypingEvent = "stop_typing"
	MessageEvent    = "message"
)

// Events sent by the server. MessageEvent, TypingEvent and StopTypingEvent are relayed under the same name.
const (
	PresenceEvent      = "presence"
	SystemMessageEvent = "system_message"
	ErrorMessageEvent  = "error_message"
)

// ErrSaveMessage is the notice sent to the author of a message the store failed to persist.
const ErrSaveMessage = "Failed to save message"

type JoinPayload struct {
	GroupID  string `json:"groupId"`
	UserName string `json:"userName"`
}

type SetAnonPayload struct {
	IsAnon bool `json:"isAnon"`
}

type TypingPayload struct {
	GroupID  string `json:"groupId"`
	UserName string `json:"userName"`
	// IsTyping defaults to true when omitted.
	IsTyping *bool `json:"isTyping,omitempty"`
}

type StopTypingPayload struct {
	GroupID  string `json:"groupId"`
	UserName string `json:"userName"`
}

type MessagePayload struct {
	GroupID  string `json:"groupId"`
	UserName string `json:"userName"`
	Message  string `json:"message"`
	IsAnon   bool   `json:"isAnon"`
}

type TypingNotice struct {
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type StopTypingNotice struct {
	UserName string `json:"userName"`
}

type SystemMessage struct {
	Message string `json:"message"`
}

type ErrorMessage struct {
	Error string `json:"error"`
}
