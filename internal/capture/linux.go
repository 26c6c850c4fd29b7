//go:build linux

package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"crosskvm/internal/kvmerr"
	"crosskvm/internal/types"
)

// Linux evdev event type/code constants (linux/input-event-codes.h).
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	relX    = 0x00
	relY    = 0x01
	relWheel = 0x08
	relHWheel = 0x06

	absX = 0x00
	absY = 0x01

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnSide   = 0x113
	btnExtra  = 0x114
)

// eviocgrab is the ioctl request number for EVIOCGRAB (linux/input.h):
// _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// inputEvent mirrors struct input_event (linux/input.h) for the 64-bit
// timeval layout used on most modern kernels/architectures.
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

const inputEventSize = 24

// device wraps one open /dev/input/eventN handle.
type device struct {
	id   types.DeviceId
	path string
	fd   int
	info types.DeviceInfo

	mu   sync.Mutex
	mode Mode
}

// EvdevSource captures input from every /dev/input/event* device readable
// by the running process, using EVIOCGRAB for exclusive capture.
type EvdevSource struct {
	mu      sync.Mutex
	devices map[types.DeviceId]*device
	nextId  types.DeviceId
	out     chan Event
	queue   *outbox
	logger  *log.Logger
	closed  bool
}

// NewEvdevSource constructs an unstarted evdev capture source.
func NewEvdevSource() *EvdevSource {
	return &EvdevSource{
		devices: make(map[types.DeviceId]*device),
		logger:  log.New(log.Writer(), "capture: ", log.LstdFlags),
	}
}

func (s *EvdevSource) Start(ctx context.Context) (<-chan Event, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, &kvmerr.FatalSubsystemError{Subsystem: "capture", Err: fmt.Errorf("enumerate /dev/input: %w", err)}
	}

	s.out = make(chan Event, 256)
	s.queue = newOutbox(s.logger)
	go s.forward()

	for _, entry := range entries {
		if !isEventDevice(entry.Name()) {
			continue
		}
		path := filepath.Join("/dev/input", entry.Name())
		if err := s.openDevice(path); err != nil {
			continue // not every node is readable/relevant; skip rather than fail the whole source
		}
	}

	go s.watchAll(ctx)

	return s.out, nil
}

// forward drains the backpressure-aware queue onto the channel handed to
// the caller of Start, one event at a time.
func (s *EvdevSource) forward() {
	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		s.out <- ev
	}
}

func isEventDevice(name string) bool {
	return len(name) > 5 && name[:5] == "event"
}

func (s *EvdevSource) openDevice(path string) error {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return err
	}

	s.mu.Lock()
	id := s.nextId
	s.nextId++
	d := &device{id: id, path: path, fd: fd, mode: Observe}
	d.info = types.DeviceInfo{
		DeviceId: id,
		Kind:     types.DeviceOther,
		Name:     path,
	}
	s.devices[id] = d
	s.mu.Unlock()

	s.queue.push(Event{Kind: EventDeviceAnnounce, DeviceId: id, Device: d.info})

	// Reading starts unconditionally: SetMode's EVIOCGRAB only decides
	// whether the local OS also sees these events, not whether this
	// process observes them. A device sits in Observe mode until the
	// barrier machine asks for Grab, and must already be readable then to
	// detect the edge crossing that triggers the grab in the first place.
	go s.readLoop(d)
	return nil
}

func (s *EvdevSource) watchAll(ctx context.Context) {
	<-ctx.Done()
	_ = s.Close()
}

func (s *EvdevSource) readLoop(d *device) {
	buf := make([]byte, inputEventSize)
	for {
		n, err := unix.Read(d.fd, buf)
		if err != nil || n != inputEventSize {
			s.mu.Lock()
			delete(s.devices, d.id)
			s.mu.Unlock()
			s.queue.push(Event{Kind: EventDeviceGone, DeviceId: d.id})
			return
		}
		if evt, ok := decodeInputEvent(buf); ok {
			if input, ok := translate(evt); ok {
				s.queue.push(Event{Kind: EventInput, DeviceId: d.id, Input: input})
			}
		}
	}
}

func decodeInputEvent(buf []byte) (inputEvent, bool) {
	if len(buf) < inputEventSize {
		return inputEvent{}, false
	}
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(buf[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(buf[8:16])),
		Type:  binary.LittleEndian.Uint16(buf[16:18]),
		Code:  binary.LittleEndian.Uint16(buf[18:20]),
		Value: int32(binary.LittleEndian.Uint32(buf[20:24])),
	}, true
}

// translate maps one evdev event to a canonical InputEvent. Unknown key
// codes are preserved as KeyUnknown with the raw scancode (§4.3).
func translate(e inputEvent) (types.InputEvent, bool) {
	switch e.Type {
	case evKey:
		code := evdevKeyToCanonical(e.Code)
		pressed := e.Value != 0
		if isButtonCode(e.Code) {
			button, ok := evdevButtonToCanonical(e.Code)
			if !ok {
				return types.InputEvent{}, false
			}
			return types.ButtonEvent(button, pressed), true
		}
		if code == types.KeyUnknown {
			if pressed {
				return types.UnknownKeyDownEvent(uint32(e.Code)), true
			}
			return types.UnknownKeyUpEvent(uint32(e.Code)), true
		}
		if pressed {
			return types.KeyDownEvent(code), true
		}
		return types.KeyUpEvent(code), true
	case evRel:
		switch e.Code {
		case relX:
			return types.PointerRelEvent(e.Value, 0), true
		case relY:
			return types.PointerRelEvent(0, e.Value), true
		case relWheel:
			return types.WheelEvent(types.WheelVertical, e.Value), true
		case relHWheel:
			return types.WheelEvent(types.WheelHorizontal, e.Value), true
		}
	case evAbs:
		// Absolute axes arrive one at a time and a single axis is not a
		// meaningful delta. translate is stateless and does not pair X/Y,
		// so EV_ABS events are dropped: no PointerAbs is ever produced here.
		return types.InputEvent{}, false
	case evSyn:
		if e.Code == synReport {
			return types.SyncEvent(), true
		}
	}
	return types.InputEvent{}, false
}

func isButtonCode(code uint16) bool {
	return code == btnLeft || code == btnRight || code == btnMiddle || code == btnSide || code == btnExtra
}

func evdevButtonToCanonical(code uint16) (types.MouseButton, bool) {
	switch code {
	case btnLeft:
		return types.ButtonLeft, true
	case btnRight:
		return types.ButtonRight, true
	case btnMiddle:
		return types.ButtonMiddle, true
	case btnSide:
		return types.ButtonBack, true
	case btnExtra:
		return types.ButtonForward, true
	default:
		return 0, false
	}
}

// evdevKeyToCanonical maps a subset of linux/input-event-codes.h KEY_*
// values to the canonical keymap. Codes with no entry return KeyUnknown
// and are preserved via RawCode.
func evdevKeyToCanonical(code uint16) types.KeyCode {
	if mapped, ok := evdevKeyTable[code]; ok {
		return mapped
	}
	return types.KeyUnknown
}

func (s *EvdevSource) SetMode(deviceId types.DeviceId, mode Mode) error {
	s.mu.Lock()
	d, ok := s.devices[deviceId]
	s.mu.Unlock()
	if !ok {
		return &kvmerr.DeviceError{DeviceName: fmt.Sprintf("device %d", deviceId), Err: fmt.Errorf("unknown device")}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == mode {
		return nil // idempotent (§4.3)
	}

	grab := 0
	if mode == Grab {
		grab = 1
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(eviocgrab), uintptr(unsafe.Pointer(&grab))); errno != 0 {
		return &kvmerr.DeviceError{DeviceName: d.info.Name, Err: fmt.Errorf("EVIOCGRAB: %w", errno)}
	}
	d.mode = mode
	return nil
}

func (s *EvdevSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, d := range s.devices {
		grab := 0
		_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uintptr(eviocgrab), uintptr(unsafe.Pointer(&grab)))
		_ = unix.Close(d.fd)
	}
	if s.queue != nil {
		s.queue.close()
	}
	if s.out != nil {
		close(s.out)
	}
	return nil
}
