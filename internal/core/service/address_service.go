package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type AddressService struct {
	addresses port.AddressRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewAddressService(addresses port.AddressRepository, logger *slog.Logger) *AddressService {
	return &AddressService{addresses: addresses, logger: logger, now: time.Now}
}

type AddressInput struct {
	Address   string   `json:"address" validate:"required"`
	Longitude *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Latitude  *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
}

type AddressUpdate struct {
	Address   *string  `json:"address" validate:"omitnil,min=1"`
	Longitude *float64 `json:"lng" validate:"omitnil,gte=-180,lte=180"`
	Latitude  *float64 `json:"lat" validate:"omitnil,gte=-90,lte=90"`
}

// CreateAddress saves an address, or returns the one the caller already saved
// at the same coordinates. created is false in that case.
func (s *AddressService) CreateAddress(ctx context.Context, caller domain.Caller, in AddressInput) (address domain.Address, created bool, err error) {
	if err := validateInput("Invalid fields detected", in); err != nil {
		return address, false, err
	}

	coords := domain.Coordinates{Longitude: *in.Longitude, Latitude: *in.Latitude}
	existing, err := s.addresses.FindAddressByCoordinates(ctx, caller.UserID, coords)
	if err != nil {
		return address, false, fmt.Errorf("find address: %w", err)
	}
	if existing != nil {
		return *existing, false, nil
	}

	address = domain.Address{
		ID:          uuid.NewString(),
		UserID:      caller.UserID,
		Address:     in.Address,
		Coordinates: coords,
		CreatedAt:   s.now().UTC(),
		Updates:     []domain.AuditEntry{},
	}
	if err := s.addresses.CreateAddress(ctx, address); err != nil {
		return address, false, fmt.Errorf("create address: %w", err)
	}
	return address, true, nil
}

func (s *AddressService) ListAddresses(ctx context.Context, caller domain.Caller, page domain.Page) (domain.PageResult[domain.Address], error) {
	var result domain.PageResult[domain.Address]

	total, err := s.addresses.CountAddresses(ctx, caller.UserID)
	if err != nil {
		return result, fmt.Errorf("count addresses: %w", err)
	}
	if err := page.Check(total); err != nil {
		return result, err
	}
	list, err := s.addresses.ListAddresses(ctx, caller.UserID, page.Offset(), page.Size)
	if err != nil {
		return result, fmt.Errorf("list addresses: %w", err)
	}
	return domain.NewPageResult(list, total, page), nil
}

func (s *AddressService) GetAddress(ctx context.Context, caller domain.Caller, id string) (domain.Address, error) {
	address, err := s.owned(ctx, caller, id)
	if err != nil {
		return domain.Address{}, err
	}
	return *address, nil
}

func (s *AddressService) UpdateAddress(ctx context.Context, caller domain.Caller, id string, in AddressUpdate) (domain.Address, error) {
	if err := validateInput("Invalid fields detected", in); err != nil {
		return domain.Address{}, err
	}
	address, err := s.owned(ctx, caller, id)
	if err != nil {
		return domain.Address{}, err
	}

	if in.Address != nil {
		address.Address = *in.Address
	}
	if in.Longitude != nil {
		address.Coordinates.Longitude = *in.Longitude
	}
	if in.Latitude != nil {
		address.Coordinates.Latitude = *in.Latitude
	}

	now := s.now().UTC()
	entry := domain.NewAuditEntry("Updated address details", now)
	if err := s.addresses.UpdateAddress(ctx, *address, entry); err != nil {
		return domain.Address{}, fmt.Errorf("update address: %w", err)
	}
	address.LastUpdatedAt = &now
	address.Updates = append(address.Updates, entry)
	return *address, nil
}

func (s *AddressService) DeleteAddress(ctx context.Context, caller domain.Caller, id string) error {
	if _, err := s.owned(ctx, caller, id); err != nil {
		return err
	}
	if _, err := s.addresses.DeleteAddress(ctx, id); err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

func (s *AddressService) owned(ctx context.Context, caller domain.Caller, id string) (*domain.Address, error) {
	address, err := s.addresses.GetAddress(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if address == nil {
		return nil, ErrAddressMissing
	}
	if address.UserID != caller.UserID {
		return nil, ErrNotAllowed
	}
	return address, nil
}
