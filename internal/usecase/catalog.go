package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"camswitch/internal/domain"
	"camswitch/internal/ports"
)

// DeviceCatalog enumerates video inputs in platform order.
type DeviceCatalog struct {
	enumerator ports.DeviceEnumerator
}

func NewDeviceCatalog(enumerator ports.DeviceEnumerator) *DeviceCatalog {
	return &DeviceCatalog{enumerator: enumerator}
}

// Refresh returns a freshly built catalog. Order is the platform's and is the
// cycle order for switching; duplicate ids keep their first position.
func (c *DeviceCatalog) Refresh(ctx context.Context) ([]domain.DeviceDescriptor, error) {
	raw, err := c.enumerator.EnumerateDevices(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrEnumeration) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEnumeration, err)
	}

	seen := make(map[string]struct{}, len(raw))
	devices := make([]domain.DeviceDescriptor, 0, len(raw))
	for _, device := range raw {
		if !strings.EqualFold(device.Kind, domain.DeviceKindVideoInput) {
			continue
		}
		if _, dup := seen[device.ID]; dup {
			continue
		}
		seen[device.ID] = struct{}{}
		devices = append(devices, domain.DeviceDescriptor{
			ID:    device.ID,
			Label: strings.TrimSpace(device.Label),
			Kind:  domain.DeviceKindVideoInput,
		})
	}
	return devices, nil
}

func indexOfDevice(catalog []domain.DeviceDescriptor, id string) int {
	for i, device := range catalog {
		if device.ID == id {
			return i
		}
	}
	return -1
}

func cloneCatalog(catalog []domain.DeviceDescriptor) []domain.DeviceDescriptor {
	if catalog == nil {
		return nil
	}
	out := make([]domain.DeviceDescriptor, len(catalog))
	copy(out, catalog)
	return out
}
