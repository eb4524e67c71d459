package lorawan

import (
	"fmt"
)

// SecuredFrame is a frame as it goes on the air: Header | Ciphertext | MIC.
// Header is authenticated but not encrypted.
type SecuredFrame struct {
	Header     []byte
	Ciphertext []byte
	MIC        MIC
}

// MarshalBinary returns Header | Ciphertext | MIC
func (f *SecuredFrame) MarshalBinary() ([]byte, error) {
	data := make([]byte, 0, len(f.Header)+len(f.Ciphertext)+len(f.MIC))
	data = append(data, f.Header...)
	data = append(data, f.Ciphertext...)
	data = append(data, f.MIC[:]...)
	return data, nil
}

// UnmarshalSecuredFrame splits a received frame. headerLen is the number of
// leading bytes that were authenticated but not encrypted.
func UnmarshalSecuredFrame(data []byte, headerLen int) (*SecuredFrame, error) {
	if headerLen < 1 {
		return nil, fmt.Errorf("%w: header length must be at least 1, got %d", ErrContractViolation, headerLen)
	}
	if len(data) < headerLen+len(MIC{}) {
		return nil, fmt.Errorf("%w: frame of %d bytes too short for a %d byte header and MIC", ErrContractViolation, len(data), headerLen)
	}

	micPos := len(data) - len(MIC{})
	f := &SecuredFrame{
		Header:     append([]byte(nil), data[:headerLen]...),
		Ciphertext: append([]byte(nil), data[headerLen:micPos]...),
	}
	copy(f.MIC[:], data[micPos:])
	return f, nil
}

type payloadCipher func(key AES128Key, devAddr DevAddr, dir Direction, fCnt uint32, data []byte) ([]byte, error)

// Seal encrypts plaintext with the AppSKey and authenticates header and
// ciphertext with the NwkSKey.
//
// Start -> Ciphering -> Authenticating -> Done
func Seal(keys SessionKeys, dir Direction, fCnt uint32, header, plaintext []byte) (*SecuredFrame, error) {
	return seal(keys, dir, fCnt, header, plaintext, EncryptFRMPayload)
}

// Open verifies the MIC of frame and only then decrypts its ciphertext.
// On a MIC mismatch no plaintext is produced and the returned error
// matches ErrAuthenticationFailure.
//
// Start -> Authenticating -> Ciphering -> Done, or Start -> Authenticating -> Rejected
func Open(keys SessionKeys, dir Direction, fCnt uint32, frame *SecuredFrame) ([]byte, error) {
	return open(keys, dir, fCnt, frame, DecryptFRMPayload)
}

func seal(keys SessionKeys, dir Direction, fCnt uint32, header, plaintext []byte, apply payloadCipher) (*SecuredFrame, error) {
	fail := func(state FrameState, err error) (*SecuredFrame, error) {
		return nil, &FrameError{Op: "seal", State: state, Err: err}
	}

	if err := checkFrameInput(dir, header, len(plaintext)); err != nil {
		return fail(StateStart, err)
	}

	ciphertext, err := apply(keys.AppSKey, keys.DevAddr, dir, fCnt, plaintext)
	if err != nil {
		return fail(StateCiphering, err)
	}

	mic, err := ComputeMIC(keys.NwkSKey, keys.DevAddr, dir, fCnt, header, ciphertext)
	if err != nil {
		return fail(StateAuthenticating, err)
	}

	return &SecuredFrame{
		Header:     append([]byte(nil), header...),
		Ciphertext: ciphertext,
		MIC:        mic,
	}, nil
}

func open(keys SessionKeys, dir Direction, fCnt uint32, frame *SecuredFrame, apply payloadCipher) ([]byte, error) {
	fail := func(state FrameState, err error) ([]byte, error) {
		return nil, &FrameError{Op: "open", State: state, Err: err}
	}

	if frame == nil {
		return fail(StateStart, fmt.Errorf("%w: nil frame", ErrContractViolation))
	}
	if err := checkFrameInput(dir, frame.Header, len(frame.Ciphertext)); err != nil {
		return fail(StateStart, err)
	}

	ok, err := ValidateMIC(keys.NwkSKey, keys.DevAddr, dir, fCnt, frame.Header, frame.Ciphertext, frame.MIC)
	if err != nil {
		return fail(StateAuthenticating, err)
	}
	if !ok {
		return fail(StateRejected, ErrAuthenticationFailure)
	}

	plaintext, err := apply(keys.AppSKey, keys.DevAddr, dir, fCnt, frame.Ciphertext)
	if err != nil {
		return fail(StateCiphering, err)
	}

	return plaintext, nil
}

func checkFrameInput(dir Direction, header []byte, payloadLen int) error {
	if !dir.valid() {
		return fmt.Errorf("%w: invalid direction %d", ErrContractViolation, dir)
	}
	if len(header) == 0 {
		return fmt.Errorf("%w: empty frame header", ErrContractViolation)
	}
	if len(header)+payloadLen > MaxMICMessageSize {
		return fmt.Errorf("%w: header and payload of %d bytes exceed %d", ErrContractViolation, len(header)+payloadLen, MaxMICMessageSize)
	}
	return nil
}
