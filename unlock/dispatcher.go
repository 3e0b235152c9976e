package unlock

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/donmezahmet/ring-unlock/ring"
)

// ErrNoIntercomFound is returned when the vendor's device listing contains no
// intercom-kind device (or none matching the configured name).
var ErrNoIntercomFound = errors.New("no intercom found")

// SessionSource provides usable vendor sessions.
type SessionSource interface {
	GetUsableSession(ctx context.Context) (*ring.Session, error)
	ForceRefresh(ctx context.Context) (*ring.Session, error)
}

// DeviceClient is the slice of the vendor API the Dispatcher needs.
type DeviceClient interface {
	ListDevices(ctx context.Context, session *ring.Session) ([]ring.Device, error)
	SendUnlockCommand(ctx context.Context, session *ring.Session, device ring.Device) error
}

// Dispatcher turns a validated session into an unlock command against the
// deployment's intercom. Device handles are resolved fresh on every call
// because device topology can change between requests.
type Dispatcher struct {
	sessions     SessionSource
	client       DeviceClient
	intercomName string
}

// NewDispatcher creates a Dispatcher. intercomName is optional; when set,
// device selection matches it by name (case-insensitive) before falling back
// to kind.
func NewDispatcher(sessions SessionSource, client DeviceClient, intercomName string) (*Dispatcher, error) {
	if sessions == nil {
		return nil, errors.New("[NewDispatcher] session source is required")
	}
	if client == nil {
		return nil, errors.New("[NewDispatcher] device client is required")
	}
	return &Dispatcher{
		sessions:     sessions,
		client:       client,
		intercomName: intercomName,
	}, nil
}

// PerformUnlock resolves the intercom and issues the open-door command. If the
// vendor rejects the token as unauthorized (it can expire between validation
// and the command), exactly one forced refresh and retry is made; the retry's
// outcome is surfaced as-is. Success means the vendor accepted the command,
// not that the door physically opened.
func (d *Dispatcher) PerformUnlock(ctx context.Context) (*ring.Device, error) {
	sess, err := d.sessions.GetUsableSession(ctx)
	if err != nil {
		return nil, err
	}

	device, err := d.attempt(ctx, sess)
	if err == nil || !errors.Is(err, ring.ErrUnauthorized) {
		return device, err
	}

	log.Warn().Msg("vendor rejected token mid-unlock, forcing refresh and retrying once")
	sess, err = d.sessions.ForceRefresh(ctx)
	if err != nil {
		return nil, err
	}
	return d.attempt(ctx, sess)
}

func (d *Dispatcher) attempt(ctx context.Context, sess *ring.Session) (*ring.Device, error) {
	devices, err := d.client.ListDevices(ctx, sess)
	if err != nil {
		return nil, err
	}

	device := d.selectIntercom(devices)
	if device == nil {
		return nil, errors.Wrapf(ErrNoIntercomFound, "available devices: %s", deviceSummary(devices))
	}

	if err := d.client.SendUnlockCommand(ctx, sess, *device); err != nil {
		return nil, err
	}
	log.Info().Str("device", device.Name).Str("kind", device.Kind).Msg("unlock command accepted")
	return device, nil
}

// selectIntercom picks the target device. A configured name wins; otherwise
// the first intercom-kind device in listing order is taken. With several
// intercoms the first-in-order tie-break is deterministic but arbitrary; a
// known limitation for multi-device households.
func (d *Dispatcher) selectIntercom(devices []ring.Device) *ring.Device {
	if d.intercomName != "" {
		for i := range devices {
			if strings.EqualFold(devices[i].Name, d.intercomName) {
				return &devices[i]
			}
		}
		return nil
	}

	var selected *ring.Device
	intercoms := 0
	for i := range devices {
		if devices[i].IsIntercom() {
			intercoms++
			if selected == nil {
				selected = &devices[i]
			}
		}
	}
	if intercoms > 1 {
		log.Debug().Int("intercoms", intercoms).Str("device", selected.Name).Msg("multiple intercoms found, using first in listing order")
	}
	return selected
}

func deviceSummary(devices []ring.Device) string {
	if len(devices) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(devices))
	for _, dev := range devices {
		parts = append(parts, fmt.Sprintf("%s (%s)", dev.Name, dev.Kind))
	}
	return strings.Join(parts, ", ")
}
