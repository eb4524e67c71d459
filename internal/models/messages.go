package models

// TokenRequest exchanges client credentials for an access token
type TokenRequest struct {
	ClientID     string `json:"clientId" validate:"required"`
	ClientSecret string `json:"clientSecret" validate:"required"`
}

// TokenResponse carries an access token
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ErrorResponse is the body of every failed REST call
type ErrorResponse struct {
	Error string `json:"error"`
}

// BusReply is the reply sent on the message bus for seal and open requests
type BusReply struct {
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Result    *FrameResponse `json:"result,omitempty"`
	RequestID string         `json:"requestId"`
}
