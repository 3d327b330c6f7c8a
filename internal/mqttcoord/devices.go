package mqttcoord

import (
	"sync"
	"time"

	"github.com/Wadanator/museum-system-sub000/internal/infrastructure/logging"
)

const (
	deviceStatusOnline  = "online"
	deviceStatusOffline = "offline"
)

// deviceRecord is one device's last-known presence state.
type deviceRecord struct {
	Status      string
	LastUpdated time.Time
}

// DeviceRecord is the read-only view returned to callers.
type DeviceRecord struct {
	ID          string
	Status      string
	LastUpdated time.Time
}

// DeviceRegistry tracks device online/offline presence from
// devices/<id>/status messages, with a staleness timeout that forces a
// device offline if no update arrives for Timeout.
//
// Safe for concurrent use; a single mutex guards all state, matching the
// rest of this package's "one tracker-wide mutex" concurrency model.
type DeviceRegistry struct {
	mu      sync.Mutex
	devices map[string]*deviceRecord
	timeout time.Duration
	log     *logging.Logger
	now     func() time.Time
}

// NewDeviceRegistry creates a registry that marks a device offline after
// timeout has elapsed without an update.
func NewDeviceRegistry(timeout time.Duration, log *logging.Logger) *DeviceRegistry {
	return &DeviceRegistry{
		devices: make(map[string]*deviceRecord),
		timeout: timeout,
		log:     log,
		now:     time.Now,
	}
}

// UpdateDeviceStatus records a status update for a device. A retained
// "online" message is ignored (it may be stale from before a broker
// restart), except that an unknown device is still registered as offline
// so it shows up in listings.
func (r *DeviceRegistry) UpdateDeviceStatus(deviceID, status string, isRetained bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	if isRetained && status == deviceStatusOnline {
		if _, known := r.devices[deviceID]; !known {
			r.devices[deviceID] = &deviceRecord{Status: deviceStatusOffline, LastUpdated: now}
		}
		return
	}

	var previous string
	if rec, known := r.devices[deviceID]; known {
		previous = rec.Status
	}

	switch {
	case (previous == "" || previous == deviceStatusOffline) && status == deviceStatusOnline:
		r.log.Warn("device connected", "device_id", deviceID)
	case previous == deviceStatusOnline && status == deviceStatusOffline:
		r.log.Warn("device disconnected", "device_id", deviceID)
	}

	r.devices[deviceID] = &deviceRecord{Status: status, LastUpdated: now}
}

// CleanupStaleDevices forces any "online" device whose last update is older
// than the configured timeout to "offline", logging once per transition.
func (r *DeviceRegistry) CleanupStaleDevices() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupStaleLocked()
}

func (r *DeviceRegistry) cleanupStaleLocked() {
	now := r.now()
	for id, rec := range r.devices {
		if rec.Status != deviceStatusOnline {
			continue
		}
		if now.Sub(rec.LastUpdated) > r.timeout {
			r.log.Warn("device timeout - marking offline", "device_id", id, "timeout", r.timeout)
			rec.Status = deviceStatusOffline
			rec.LastUpdated = now
		}
	}
}

// GetConnectedDevices runs staleness cleanup and returns the devices
// currently online.
func (r *DeviceRegistry) GetConnectedDevices() []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupStaleLocked()

	var out []DeviceRecord
	for id, rec := range r.devices {
		if rec.Status == deviceStatusOnline {
			out = append(out, DeviceRecord{ID: id, Status: rec.Status, LastUpdated: rec.LastUpdated})
		}
	}
	return out
}

// GetAllDevices runs staleness cleanup and returns every known device.
func (r *DeviceRegistry) GetAllDevices() []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanupStaleLocked()

	out := make([]DeviceRecord, 0, len(r.devices))
	for id, rec := range r.devices {
		out = append(out, DeviceRecord{ID: id, Status: rec.Status, LastUpdated: rec.LastUpdated})
	}
	return out
}

// Clear removes all device records.
func (r *DeviceRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[string]*deviceRecord)
}
