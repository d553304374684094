package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/parking-ticket-tracker/internal/clock"
	"github.com/iliyamo/parking-ticket-tracker/internal/model"
	"github.com/iliyamo/parking-ticket-tracker/internal/store"
	"github.com/iliyamo/parking-ticket-tracker/internal/ticketcode"
	"github.com/iliyamo/parking-ticket-tracker/internal/utils"
)

// DeviceRepo stores registered devices under <namespace>:devices:<id>.
type DeviceRepo struct {
	kv        store.Store
	namespace string
	clock     clock.Clock
}

func NewDeviceRepo(kv store.Store, namespace string, clk clock.Clock) *DeviceRepo {
	if clk == nil {
		clk = clock.Real()
	}
	return &DeviceRepo{kv: kv, namespace: namespace, clock: clk}
}

func (r *DeviceRepo) key(id string) string { return store.Key(r.namespace, "devices", id) }

// Create registers a new device with a bcrypt hash of passcode and returns it.
func (r *DeviceRepo) Create(ctx context.Context, name, passcode string, cost int) (model.Device, error) {
	hash, err := utils.HashPassword(passcode, cost)
	if err != nil {
		return model.Device{}, err
	}
	d := model.Device{
		ID:           ticketcode.NewID(),
		Name:         strings.TrimSpace(name),
		PasscodeHash: hash,
		CreatedAt:    normalize(r.clock.Now()),
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return model.Device{}, err
	}
	if err := r.kv.Set(ctx, r.key(d.ID), raw); err != nil {
		return model.Device{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return d, nil
}

// GetByID fetches a device, or ErrDeviceNotFound.
func (r *DeviceRepo) GetByID(ctx context.Context, id string) (model.Device, error) {
	raw, ok, err := r.kv.Get(ctx, r.key(id))
	if err != nil {
		return model.Device{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !ok {
		return model.Device{}, ErrDeviceNotFound
	}
	var d model.Device
	if err := json.Unmarshal(raw, &d); err != nil {
		return model.Device{}, fmt.Errorf("%w: decode device %q: %v", ErrPersistence, id, err)
	}
	return d, nil
}
