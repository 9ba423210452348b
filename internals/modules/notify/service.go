package notify

import (
	"context"
	"fmt"
	"time"

	"pulsewatch/internals/security"
	"pulsewatch/pkg/apperror"

	"github.com/google/uuid"
)

type ChannelStore interface {
	Create(ctx context.Context, ownerID uuid.UUID, kind ChannelKind, address string) (uuid.UUID, error)
	GetByID(ctx context.Context, channelID uuid.UUID) (Channel, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Channel, error)
	SetState(ctx context.Context, channelID uuid.UUID, state ChannelState) error
}

// CodeStore holds hashed verification codes until their TTL runs out.
type CodeStore interface {
	SetVerificationCode(ctx context.Context, channelID uuid.UUID, codeHash string, ttl time.Duration) error
	GetVerificationCode(ctx context.Context, channelID uuid.UUID) (string, error)
	DelVerificationCode(ctx context.Context, channelID uuid.UUID) error
}

// Service manages notification channels and their verification lifecycle.
type Service struct {
	channels  ChannelStore
	codes     CodeStore
	providers *ProviderSet
	codeTTL   time.Duration
}

func NewService(channels ChannelStore, codes CodeStore, providers *ProviderSet, codeTTL time.Duration) *Service {
	return &Service{
		channels:  channels,
		codes:     codes,
		providers: providers,
		codeTTL:   codeTTL,
	}
}

func (s *Service) CreateChannel(ctx context.Context, ownerID uuid.UUID, kind ChannelKind, address string) (uuid.UUID, error) {
	const op string = "service.notify.create_channel"

	if kind != ChannelEmail && kind != ChannelSMS {
		return uuid.Nil, apperror.New(apperror.InvalidInput, op, nil).
			WithMessage(fmt.Sprintf("unknown channel kind %q", kind))
	}

	return s.channels.Create(ctx, ownerID, kind, address)
}

func (s *Service) ListChannels(ctx context.Context, ownerID uuid.UUID) ([]Channel, error) {
	return s.channels.ListByOwner(ctx, ownerID)
}

// RequestVerification issues a fresh code, stores its hash with the
// configured TTL and delivers the code over the channel itself. Moves the
// channel to pending_code_sent.
func (s *Service) RequestVerification(ctx context.Context, ownerID, channelID uuid.UUID) error {
	const op string = "service.notify.request_verification"

	ch, err := s.ownedChannel(ctx, op, ownerID, channelID)
	if err != nil {
		return err
	}
	if ch.State == ChannelVerified {
		return apperror.New(apperror.Conflict, op, nil).
			WithMessage("channel is already verified")
	}

	code, err := security.NewVerificationCode()
	if err != nil {
		return apperror.New(apperror.Internal, op, err)
	}
	hash, err := security.HashCode(code)
	if err != nil {
		return apperror.New(apperror.Internal, op, err)
	}

	if err := s.codes.SetVerificationCode(ctx, channelID, hash, s.codeTTL); err != nil {
		return apperror.New(apperror.Dependency, op, err)
	}

	provider, err := s.providers.For(ch.Kind)
	if err != nil {
		return err
	}
	if err := provider.Send(ctx, ch,
		"Your verification code",
		fmt.Sprintf("Enter %s to verify this channel. The code expires in %s.", code, s.codeTTL),
	); err != nil {
		return err
	}

	return s.channels.SetState(ctx, channelID, ChannelPendingCodeSent)
}

// ConfirmVerification checks the submitted code against the stored hash and
// promotes the channel to verified.
func (s *Service) ConfirmVerification(ctx context.Context, ownerID, channelID uuid.UUID, code string) error {
	const op string = "service.notify.confirm_verification"

	ch, err := s.ownedChannel(ctx, op, ownerID, channelID)
	if err != nil {
		return err
	}
	if ch.State != ChannelPendingCodeSent {
		return apperror.New(apperror.Conflict, op, nil).
			WithMessage("no verification in progress for this channel")
	}

	hash, err := s.codes.GetVerificationCode(ctx, channelID)
	if err != nil {
		return apperror.New(apperror.Dependency, op, err)
	}
	if hash == "" {
		return apperror.New(apperror.InvalidInput, op, nil).
			WithMessage("verification code expired, request a new one")
	}

	match, err := security.CompareCode(code, hash)
	if err != nil {
		return apperror.New(apperror.Internal, op, err)
	}
	if !match {
		return apperror.New(apperror.InvalidInput, op, nil).
			WithMessage("verification code does not match")
	}

	if err := s.channels.SetState(ctx, channelID, ChannelVerified); err != nil {
		return err
	}
	_ = s.codes.DelVerificationCode(ctx, channelID)
	return nil
}

func (s *Service) ownedChannel(ctx context.Context, op string, ownerID, channelID uuid.UUID) (Channel, error) {
	ch, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return Channel{}, err
	}
	if ch.OwnerID != ownerID {
		return Channel{}, apperror.New(apperror.Forbidden, op, nil).
			WithMessage("channel belongs to another owner")
	}
	return ch, nil
}
