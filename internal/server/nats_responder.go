package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/lorawan-server/lorawan-framesec/internal/config"
	"github.com/lorawan-server/lorawan-framesec/internal/framesec"
	"github.com/lorawan-server/lorawan-framesec/internal/models"
)

// FrameService is the part of framesec.Service the responder needs
type FrameService interface {
	Seal(ctx context.Context, req *models.SealRequest) (*models.FrameResponse, error)
	Open(ctx context.Context, req *models.OpenRequest) (*models.FrameResponse, error)
}

// NATSResponder answers seal and open requests on
// <prefix>.seal and <prefix>.open
type NATSResponder struct {
	nc      *nats.Conn
	service FrameService
	config  *config.NATSConfig
	subs    []*nats.Subscription
}

// NewNATSResponder creates NATS responder
func NewNATSResponder(nc *nats.Conn, service FrameService, cfg *config.NATSConfig) *NATSResponder {
	return &NATSResponder{
		nc:      nc,
		service: service,
		config:  cfg,
		subs:    make([]*nats.Subscription, 0),
	}
}

// SealSubject returns the subject seal requests are received on
func (s *NATSResponder) SealSubject() string {
	return s.config.SubjectPrefix + ".seal"
}

// OpenSubject returns the subject open requests are received on
func (s *NATSResponder) OpenSubject() string {
	return s.config.SubjectPrefix + ".open"
}

// Start subscribes and blocks until ctx is cancelled
func (s *NATSResponder) Start(ctx context.Context) error {
	handlers := map[string]func(context.Context, []byte) *models.BusReply{
		s.SealSubject(): s.sealReply,
		s.OpenSubject(): s.openReply,
	}

	for subject, handle := range handlers {
		handle := handle
		cb := func(msg *nats.Msg) {
			s.respond(msg, handle(ctx, msg.Data))
		}

		var (
			sub *nats.Subscription
			err error
		)
		if s.config.QueueGroup != "" {
			sub, err = s.nc.QueueSubscribe(subject, s.config.QueueGroup, cb)
		} else {
			sub, err = s.nc.Subscribe(subject, cb)
		}
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}

	log.Info().
		Int("subscriptions", len(s.subs)).
		Str("seal_subject", s.SealSubject()).
		Str("open_subject", s.OpenSubject()).
		Str("queue_group", s.config.QueueGroup).
		Msg("NATS responder started")

	<-ctx.Done()

	s.unsubscribe()

	return ctx.Err()
}

func (s *NATSResponder) unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", sub.Subject).Msg("Failed to unsubscribe")
		}
	}
	s.subs = s.subs[:0]
}

// sealReply handles one seal request payload
func (s *NATSResponder) sealReply(ctx context.Context, data []byte) *models.BusReply {
	var req models.SealRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(fmt.Errorf("%w: invalid request body: %v", framesec.ErrBadRequest, err))
	}

	resp, err := s.service.Seal(ctx, &req)
	if err != nil {
		return errorReply(err)
	}
	return okReply(resp)
}

// openReply handles one open request payload
func (s *NATSResponder) openReply(ctx context.Context, data []byte) *models.BusReply {
	var req models.OpenRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(fmt.Errorf("%w: invalid request body: %v", framesec.ErrBadRequest, err))
	}

	resp, err := s.service.Open(ctx, &req)
	if err != nil {
		return errorReply(err)
	}
	return okReply(resp)
}

// respond sends reply if the message expects one
func (s *NATSResponder) respond(msg *nats.Msg, reply *models.BusReply) {
	if !reply.OK {
		log.Debug().
			Str("subject", msg.Subject).
			Str("request_id", reply.RequestID).
			Str("error", reply.Error).
			Msg("Frame request failed")
	}

	if msg.Reply == "" {
		log.Warn().Str("subject", msg.Subject).Msg("Frame request without reply subject dropped")
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reply")
		return
	}

	if err := msg.Respond(data); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to send reply")
	}
}

func okReply(resp *models.FrameResponse) *models.BusReply {
	return &models.BusReply{
		OK:        true,
		Result:    resp,
		RequestID: uuid.New().String(),
	}
}

// errorReply hides internal errors, client errors are passed through
func errorReply(err error) *models.BusReply {
	reply := &models.BusReply{RequestID: uuid.New().String()}

	switch {
	case errors.Is(err, framesec.ErrBadRequest),
		errors.Is(err, framesec.ErrUnknownDevice):
		reply.Error = err.Error()
	case errors.Is(err, framesec.ErrAuthentication):
		reply.Error = framesec.ErrAuthentication.Error()
	default:
		log.Error().Err(err).Str("request_id", reply.RequestID).Msg("Frame request failed")
		reply.Error = "internal error"
	}

	return reply
}
