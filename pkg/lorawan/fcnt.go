package lorawan

// GetFullFCnt gets the full 32-bit frame counter from the 16-bit value sent
// in the FHDR, using the last known full counter to detect a rollover
func GetFullFCnt(lastFCnt uint32, fCnt uint16) uint32 {
	// Get the upper 16 bits from the last counter
	upperBits := lastFCnt & 0xFFFF0000

	// Check for rollover
	if uint16(lastFCnt) > fCnt && (uint16(lastFCnt)-fCnt) > 0x8000 {
		upperBits += 0x10000
	}

	return upperBits | uint32(fCnt)
}
