package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-framesec/internal/framesec"
	"github.com/lorawan-server/lorawan-framesec/internal/keystore"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
	"github.com/lorawan-server/lorawan-framesec/pkg/crypto"
	"github.com/lorawan-server/lorawan-framesec/pkg/lorawan"
)

const usage = `Usage: framesec <command> [flags]

Commands:
  seal         encrypt and authenticate a payload, prints the frame hex
  open         verify and decrypt a frame, prints the payload hex
  hash-secret  print the bcrypt hash of an API client secret
  seal-value   seal a key value with the master key
  gen-key      print a random AES-128 key

Run framesec <command> -h for the flags of a command.
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "seal":
		err = runSeal(os.Args[2:], os.Stdout)
	case "open":
		err = runOpen(os.Args[2:], os.Stdout)
	case "hash-secret":
		err = runHashSecret(os.Args[2:], os.Stdout)
	case "seal-value":
		err = runSealValue(os.Args[2:], os.Stdout)
	case "gen-key":
		err = runGenKey(os.Stdout)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "framesec %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// keyFlags are shared by seal and open
type keyFlags struct {
	keys      string
	masterKey string
	verbose   bool
}

func (k *keyFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&k.keys, "keys", "devices.yml", "Device key file")
	fs.StringVar(&k.masterKey, "master-key", os.Getenv("FRAMESEC_MASTER_KEY"), "Hex master key for sealed key values")
	fs.BoolVar(&k.verbose, "v", false, "Verbose logging")
}

func (k *keyFlags) service() (*framesec.Service, error) {
	if k.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	codec, err := keystore.NewKeyCodec(k.masterKey)
	if err != nil {
		return nil, err
	}
	store, err := keystore.NewFileStore(k.keys, codec)
	if err != nil {
		return nil, err
	}
	return framesec.NewService(store), nil
}

func runSeal(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seal", flag.ContinueOnError)
	var kf keyFlags
	kf.register(fs)
	devAddr := fs.String("dev-addr", "", "Device address, hex")
	fCnt := fs.Uint("fcnt", 0, "Frame counter")
	payload := fs.String("payload", "", "Plaintext FRMPayload, hex")
	header := fs.String("header", "", "Raw frame header, hex (overrides -mtype)")
	direction := fs.String("dir", "", "uplink or downlink, required with -header")
	mtype := fs.String("mtype", "unconfirmed-up", "Message type: unconfirmed-up, unconfirmed-down, confirmed-up, confirmed-down")
	fPort := fs.Int("fport", -1, "FPort, required when a payload is given")
	fOpts := fs.String("fopts", "", "FOpts, hex")
	adr := fs.Bool("adr", false, "Set the ADR bit")
	ack := fs.Bool("ack", false, "Set the ACK bit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *devAddr == "" {
		return fmt.Errorf("-dev-addr is required")
	}
	if uint64(*fCnt) > uint64(^uint32(0)) {
		return fmt.Errorf("-fcnt %d exceeds 32 bits", *fCnt)
	}

	req := &models.SealRequest{
		DevAddr: *devAddr,
		FCnt:    uint32(*fCnt),
		Header:  *header,
		Payload: *payload,
	}

	if *header != "" {
		if *direction == "" {
			return fmt.Errorf("-dir is required with -header")
		}
		req.Direction = *direction
	} else {
		addr, err := lorawan.ParseDevAddr(*devAddr)
		if err != nil {
			return err
		}
		opts, err := hex.DecodeString(*fOpts)
		if err != nil {
			return fmt.Errorf("decode -fopts: %w", err)
		}
		hdr, dir, err := buildHeader(*mtype, addr, uint32(*fCnt), *fPort, *payload != "", opts)
		if err != nil {
			return err
		}
		hdr.FHDR.FCtrl.ADR = *adr
		hdr.FHDR.FCtrl.ACK = *ack

		b, err := hdr.MarshalBinary()
		if err != nil {
			return err
		}
		req.Header = hex.EncodeToString(b)
		req.Direction = dir.String()
	}

	svc, err := kf.service()
	if err != nil {
		return err
	}

	resp, err := svc.Seal(context.Background(), req)
	if err != nil {
		return err
	}

	log.Debug().
		Str("header", resp.Header).
		Str("ciphertext", resp.Payload).
		Str("mic", resp.MIC).
		Msg("Frame sealed")

	fmt.Fprintln(out, resp.Frame)
	return nil
}

// buildHeader builds a data frame header carrying the low 16 bits of fCnt
func buildHeader(mtype string, devAddr lorawan.DevAddr, fCnt uint32, fPort int, hasPayload bool, fOpts []byte) (*lorawan.DataHeader, lorawan.Direction, error) {
	mt, err := lorawan.ParseMType(mtype)
	if err != nil {
		return nil, 0, err
	}
	dir, _ := mt.Direction()

	hdr := &lorawan.DataHeader{
		MHDR: lorawan.MHDR{MType: mt, Major: lorawan.LoRaWANR1},
		FHDR: lorawan.FHDR{
			DevAddr: devAddr,
			FCnt:    uint16(fCnt),
			FOpts:   fOpts,
		},
	}

	switch {
	case fPort > 255:
		return nil, 0, fmt.Errorf("-fport %d out of range", fPort)
	case fPort >= 0:
		p := uint8(fPort)
		hdr.FPort = &p
	case hasPayload:
		return nil, 0, fmt.Errorf("-fport is required when a payload is given")
	}

	return hdr, dir, nil
}

func runOpen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	var kf keyFlags
	kf.register(fs)
	frameHex := fs.String("frame", "", "Received frame, hex")
	headerLen := fs.Int("header-len", 0, "Header length in bytes, 0 reads it from the FHDR")
	devAddr := fs.String("dev-addr", "", "Device address, defaults to the FHDR address")
	direction := fs.String("dir", "", "uplink or downlink, defaults to the MType direction")
	fCnt := fs.Int64("fcnt", -1, "Full 32-bit frame counter")
	lastFCnt := fs.Int64("last-fcnt", -1, "Last known 32-bit frame counter, the FHDR counter is expanded from it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := hex.DecodeString(strings.ReplaceAll(*frameHex, " ", ""))
	if err != nil {
		return fmt.Errorf("decode -frame: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("-frame is required")
	}

	req, err := openRequest(data, *headerLen, *devAddr, *direction, *fCnt, *lastFCnt)
	if err != nil {
		return err
	}

	svc, err := kf.service()
	if err != nil {
		return err
	}

	resp, err := svc.Open(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, resp.Payload)
	return nil
}

// openRequest fills the request from flags, reading whatever is not given
// from the frame's data header
func openRequest(data []byte, headerLen int, devAddr, direction string, fCnt, lastFCnt int64) (*models.OpenRequest, error) {
	req := &models.OpenRequest{
		DevAddr:   devAddr,
		Direction: direction,
		Frame:     hex.EncodeToString(data),
		HeaderLen: headerLen,
	}

	if fCnt > int64(^uint32(0)) || lastFCnt > int64(^uint32(0)) {
		return nil, fmt.Errorf("frame counters are limited to 32 bits")
	}
	if fCnt >= 0 && headerLen > 0 && devAddr != "" && direction != "" {
		req.FCnt = uint32(fCnt)
		return req, nil
	}

	if req.HeaderLen == 0 {
		n, err := dataHeaderLen(data)
		if err != nil {
			return nil, err
		}
		req.HeaderLen = n
	}
	if req.HeaderLen > len(data) {
		return nil, fmt.Errorf("%w: header length %d exceeds frame length %d", lorawan.ErrContractViolation, req.HeaderLen, len(data))
	}

	var hdr lorawan.DataHeader
	if err := hdr.UnmarshalBinary(data[:req.HeaderLen]); err != nil {
		return nil, fmt.Errorf("parse data header: %w", err)
	}

	if req.DevAddr == "" {
		req.DevAddr = hdr.FHDR.DevAddr.String()
	}
	if req.Direction == "" {
		dir, _ := hdr.MHDR.MType.Direction()
		req.Direction = dir.String()
	}

	switch {
	case fCnt >= 0:
		req.FCnt = uint32(fCnt)
	case lastFCnt >= 0:
		req.FCnt = lorawan.GetFullFCnt(uint32(lastFCnt), hdr.FHDR.FCnt)
	default:
		req.FCnt = uint32(hdr.FHDR.FCnt)
	}

	return req, nil
}

// dataHeaderLen returns MHDR | FHDR | FPort length, FPort is present when
// bytes remain between the FHDR and the MIC
func dataHeaderLen(data []byte) (int, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: frame of %d bytes has no data header", lorawan.ErrContractViolation, len(data))
	}
	n := 8 + int(data[5]&0x0F)
	if len(data) > n+len(lorawan.MIC{}) {
		n++
	}
	return n, nil
}

func runHashSecret(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("hash-secret", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: framesec hash-secret <secret>")
	}

	hash, err := crypto.HashPassword(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hash)
	return nil
}

func runSealValue(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seal-value", flag.ContinueOnError)
	masterKey := fs.String("master-key", os.Getenv("FRAMESEC_MASTER_KEY"), "Hex master key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: framesec seal-value -master-key <hex> <value>")
	}

	mk, err := hex.DecodeString(strings.ReplaceAll(*masterKey, " ", ""))
	if err != nil || len(mk) != 16 {
		return fmt.Errorf("-master-key must be 16 hex encoded bytes")
	}

	sealed, err := crypto.SealValue(mk, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, sealed)
	return nil
}

func runGenKey(out io.Writer) error {
	b, err := crypto.GenerateRandomBytes(16)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, hex.EncodeToString(b))
	return nil
}
