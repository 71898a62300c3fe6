package bus

import (
	"fmt"
	"sort"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/device"
)

// Registry maps bus slots to the adapters that answer them. Each adapter is
// reachable through exactly one slot.
//
// A Registry is owned by the scheduler goroutine and is not safe for
// concurrent use.
type Registry struct {
	devices  map[device.Slot]device.Adapter
	disabled map[device.Slot]bool
}

func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[device.Slot]device.Adapter),
		disabled: make(map[device.Slot]bool),
	}
}

// Add registers a at slot. Slots are assigned once; adding to an occupied
// slot is an error.
func (r *Registry) Add(slot device.Slot, a device.Adapter) error {
	if a == nil {
		return fmt.Errorf("bus: nil adapter for slot %s", slot)
	}
	if existing, ok := r.devices[slot]; ok {
		return fmt.Errorf("bus: slot %s already holds %s", slot, existing.Name())
	}

	r.devices[slot] = a
	logger.Debug("Device added", logger.Device(a.Name()), logger.SlotHex(uint8(slot)))
	return nil
}

// Remove closes and unregisters the adapter at slot, if any.
func (r *Registry) Remove(slot device.Slot) {
	a, ok := r.devices[slot]
	if !ok {
		return
	}
	a.Close()
	delete(r.devices, slot)
	delete(r.disabled, slot)
	logger.Debug("Device removed", logger.Device(a.Name()), logger.SlotHex(uint8(slot)))
}

// Get returns the adapter answering slot. Disabled adapters, and adapters
// that report themselves disabled through device.Toggler, are absent.
func (r *Registry) Get(slot device.Slot) (device.Adapter, bool) {
	a, ok := r.devices[slot]
	if !ok || r.disabled[slot] {
		return nil, false
	}
	if t, ok := a.(device.Toggler); ok && !t.Enabled() {
		return nil, false
	}
	return a, true
}

// Enable makes a previously disabled slot answer again.
func (r *Registry) Enable(slot device.Slot) {
	delete(r.disabled, slot)
}

// Disable keeps the adapter registered but makes the slot appear absent.
func (r *Registry) Disable(slot device.Slot) {
	if _, ok := r.devices[slot]; ok {
		r.disabled[slot] = true
	}
}

// Slots returns the occupied slots in ascending order.
func (r *Registry) Slots() []device.Slot {
	slots := make([]device.Slot, 0, len(r.devices))
	for s := range r.devices {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
	return slots
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	return len(r.devices)
}

// Shutdown closes every adapter. The registry keeps its entries so a
// shutdown summary can still list them.
func (r *Registry) Shutdown() {
	for _, s := range r.Slots() {
		a := r.devices[s]
		logger.Debug("Closing device", logger.Device(a.Name()), logger.SlotHex(uint8(s)))
		a.Close()
	}
}
