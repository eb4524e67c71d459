package models

// SealRequest asks for a plaintext payload to be encrypted and authenticated.
// Binary fields are hex strings.
type SealRequest struct {
	DevAddr   string `json:"devAddr" validate:"required,hexlen=4"`
	Direction string `json:"direction" validate:"required,oneof=uplink downlink"`
	FCnt      uint32 `json:"fCnt"`
	Header    string `json:"header" validate:"required,hex"`
	Payload   string `json:"payload" validate:"hex"`
}

// OpenRequest asks for a received frame to be verified and decrypted.
// Frame is Header | Ciphertext | MIC and HeaderLen is the length of Header.
type OpenRequest struct {
	DevAddr   string `json:"devAddr" validate:"required,hexlen=4"`
	Direction string `json:"direction" validate:"required,oneof=uplink downlink"`
	FCnt      uint32 `json:"fCnt"`
	Frame     string `json:"frame" validate:"required,hex"`
	HeaderLen int    `json:"headerLen" validate:"min=1,max=255"`
}

// FrameResponse is returned by both operations.
// For seal, Payload is the ciphertext, for open it is the plaintext.
type FrameResponse struct {
	DevAddr   string `json:"devAddr"`
	Direction string `json:"direction"`
	FCnt      uint32 `json:"fCnt"`
	Frame     string `json:"frame,omitempty"`
	Header    string `json:"header,omitempty"`
	Payload   string `json:"payload"`
	MIC       string `json:"mic"`
}
