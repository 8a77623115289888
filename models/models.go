package models

// ChatTurn is one prior message supplied by the client.
// Any role other than "user" is treated as the assistant.
type ChatTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// ChatRequest represents the incoming chat request
type ChatRequest struct {
	Message string     `json:"message"`
	History []ChatTurn `json:"history,omitempty"`
}

type ChatResponse struct {
	Text string `json:"text"`
}

// TTSRequest represents the incoming speech request. Speed is left untyped
// because clients send numbers, numeric strings or nothing at all.
type TTSRequest struct {
	Text    string `json:"text"`
	Voice   string `json:"voice,omitempty"`
	VoiceID string `json:"voiceId,omitempty"`
	Format  string `json:"format,omitempty"`
	Speed   any    `json:"speed,omitempty"`
}

type TTSResponse struct {
	Audio  string `json:"audio"`
	Format string `json:"format"`
}

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

// WSChatReply is one frame written back on the chat websocket.
type WSChatReply struct {
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail any    `json:"detail,omitempty"`
	Status int    `json:"status,omitempty"`
}
