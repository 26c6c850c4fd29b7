//go:build linux

package emulation

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"crosskvm/internal/kvmerr"
	"crosskvm/internal/types"
)

// uinput ioctl request numbers and event-type constants
// (linux/uinput.h, linux/input-event-codes.h). Values are the standard
// _IOW(...)/_IO(...) expansions for UINPUT_IOCTL_BASE='U' (0x55), the
// same constants every Go uinput binding hand-codes since the kernel
// header cannot be cgo-imported without a build dependency on kernel
// headers being present.
const (
	uiSetEvbit  = 0x40045564
	uiSetKeybit = 0x40045565
	uiSetRelbit = 0x40045566
	uiSetAbsbit = 0x40045567
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502

	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	relX      = 0x00
	relY      = 0x01
	relWheel  = 0x08
	relHWheel = 0x06

	absX = 0x00
	absY = 0x01
	absCount = 64

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnSide   = 0x113
	btnExtra  = 0x114
)

type uinputUserDev struct {
	Name         [80]byte
	IdBustype    uint16
	IdVendor     uint16
	IdProduct    uint16
	IdVersion    uint16
	FFEffectsMax uint32
	AbsMax       [absCount]int32
	AbsMin       [absCount]int32
	AbsFuzz      [absCount]int32
	AbsFlat      [absCount]int32
}

type virtualDevice struct {
	id types.VirtualDeviceId
	fd int
}

// UinputEmulator synthesises input on Linux via /dev/uinput.
type UinputEmulator struct {
	mu      sync.Mutex
	devices map[types.DeviceId]*virtualDevice
	nextId  types.VirtualDeviceId
}

// NewUinputEmulator constructs an emulator with no virtual devices yet.
func NewUinputEmulator() *UinputEmulator {
	return &UinputEmulator{devices: make(map[types.DeviceId]*virtualDevice)}
}

func (e *UinputEmulator) EnsureDevice(info types.DeviceInfo) (types.VirtualDeviceId, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.devices[info.DeviceId]; ok {
		return existing.id, nil
	}

	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return 0, &kvmerr.FatalSubsystemError{Subsystem: "emulation", Err: fmt.Errorf("open /dev/uinput: %w", err)}
	}

	if err := setupCapabilities(fd, info); err != nil {
		_ = unix.Close(fd)
		return 0, &kvmerr.DeviceError{DeviceName: info.Name, Err: err}
	}

	if err := writeUserDev(fd, info); err != nil {
		_ = unix.Close(fd)
		return 0, &kvmerr.DeviceError{DeviceName: info.Name, Err: err}
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(uiDevCreate), 0); errno != 0 {
		_ = unix.Close(fd)
		return 0, &kvmerr.DeviceError{DeviceName: info.Name, Err: fmt.Errorf("UI_DEV_CREATE: %w", errno)}
	}

	e.nextId++
	vd := &virtualDevice{id: e.nextId, fd: fd}
	e.devices[info.DeviceId] = vd
	return vd.id, nil
}

func setupCapabilities(fd int, info types.DeviceInfo) error {
	hasCap := func(c types.DeviceCapability) bool {
		for _, have := range info.Capabilities {
			if have == c {
				return true
			}
		}
		return false
	}

	if hasCap(types.CapKeyboard) {
		if err := ioctlInt(fd, uiSetEvbit, evKey); err != nil {
			return err
		}
		for code := range evdevKeyTableReverse {
			_ = ioctlInt(fd, uiSetKeybit, int(code))
		}
		for _, b := range []int{btnLeft, btnRight, btnMiddle, btnSide, btnExtra} {
			_ = ioctlInt(fd, uiSetKeybit, b)
		}
	}
	if hasCap(types.CapRelativeMouse) || hasCap(types.CapScroll) {
		if err := ioctlInt(fd, uiSetEvbit, evRel); err != nil {
			return err
		}
		for _, axis := range []int{relX, relY, relWheel, relHWheel} {
			_ = ioctlInt(fd, uiSetRelbit, axis)
		}
		if err := ioctlInt(fd, uiSetEvbit, evKey); err != nil {
			return err
		}
		for _, b := range []int{btnLeft, btnRight, btnMiddle} {
			_ = ioctlInt(fd, uiSetKeybit, b)
		}
	}
	if hasCap(types.CapAbsoluteMouse) {
		if err := ioctlInt(fd, uiSetEvbit, evAbs); err != nil {
			return err
		}
		_ = ioctlInt(fd, uiSetAbsbit, absX)
		_ = ioctlInt(fd, uiSetAbsbit, absY)
	}
	return nil
}

func ioctlInt(fd int, request uintptr, value int) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), request, uintptr(value)); errno != 0 {
		return errno
	}
	return nil
}

func writeUserDev(fd int, info types.DeviceInfo) error {
	var dev uinputUserDev
	name := fmt.Sprintf("crosskvm-%s", info.Name)
	copy(dev.Name[:], name)
	dev.IdBustype = 0x06 // BUS_VIRTUAL
	dev.IdVendor = info.VendorId
	dev.IdProduct = info.ProductId
	dev.IdVersion = 1
	dev.AbsMax[absX] = 65535
	dev.AbsMax[absY] = 65535

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, dev); err != nil {
		return fmt.Errorf("marshal uinput_user_dev: %w", err)
	}
	if _, err := unix.Write(fd, buf.Bytes()); err != nil {
		return fmt.Errorf("write uinput_user_dev: %w", err)
	}
	return nil
}

func (e *UinputEmulator) Apply(batch types.EventBatch, screenW, screenH int32) error {
	e.mu.Lock()
	vd, ok := e.devices[batch.DeviceId]
	e.mu.Unlock()
	if !ok {
		return &kvmerr.DeviceError{DeviceName: fmt.Sprintf("device %d", batch.DeviceId), Err: fmt.Errorf("EnsureDevice not called")}
	}

	for _, ev := range batch.Events {
		if err := emitOne(vd.fd, ev, screenW, screenH); err != nil {
			// §4.4: a failed synthesis is logged by the caller and does
			// not halt the session, but must never reorder — so we stop
			// applying this batch rather than skip-and-continue.
			return &kvmerr.DeviceError{DeviceName: fmt.Sprintf("device %d", batch.DeviceId), Err: err}
		}
	}
	return nil
}

func emitOne(fd int, ev types.InputEvent, screenW, screenH int32) error {
	switch ev.Kind {
	case types.EventKeyDown, types.EventKeyUp:
		code := uint16(ev.Code)
		if ev.Code == types.KeyUnknown {
			code = uint16(ev.RawCode)
		} else if mapped, ok := canonicalToEvdevKey[ev.Code]; ok {
			code = mapped
		}
		value := int32(0)
		if ev.Kind == types.EventKeyDown {
			value = 1
		}
		return writeEvent(fd, evKey, code, value)
	case types.EventPointerRel:
		if ev.DX != 0 {
			if err := writeEvent(fd, evRel, relX, ev.DX); err != nil {
				return err
			}
		}
		if ev.DY != 0 {
			if err := writeEvent(fd, evRel, relY, ev.DY); err != nil {
				return err
			}
		}
		return writeEvent(fd, evSyn, synReport, 0)
	case types.EventPointerAbs:
		x, y := clamp(ev.X, 0, screenW-1), clamp(ev.Y, 0, screenH-1)
		if err := writeEvent(fd, evAbs, absX, x); err != nil {
			return err
		}
		if err := writeEvent(fd, evAbs, absY, y); err != nil {
			return err
		}
		return writeEvent(fd, evSyn, synReport, 0)
	case types.EventButton:
		code, ok := canonicalToEvdevButton[ev.Button]
		if !ok {
			return nil
		}
		value := int32(0)
		if ev.Pressed {
			value = 1
		}
		if err := writeEvent(fd, evKey, code, value); err != nil {
			return err
		}
		return writeEvent(fd, evSyn, synReport, 0)
	case types.EventWheel:
		axis := uint16(relWheel)
		if ev.Axis == types.WheelHorizontal {
			axis = relHWheel
		}
		if err := writeEvent(fd, evRel, axis, ev.WheelValue); err != nil {
			return err
		}
		return writeEvent(fd, evSyn, synReport, 0)
	case types.EventSync:
		return writeEvent(fd, evSyn, synReport, 0)
	}
	return nil
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func writeEvent(fd int, evType, code uint16, value int32) error {
	var buf [24]byte // struct input_event: 2x int64 timestamp + u16 type + u16 code + s32 value
	binary.LittleEndian.PutUint16(buf[16:18], evType)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	_, err := unix.Write(fd, buf[:])
	return err
}

func (e *UinputEmulator) ReleaseDevice(deviceId types.VirtualDeviceId) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, vd := range e.devices {
		if vd.id == deviceId {
			_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(vd.fd), uintptr(uiDevDestroy), 0)
			_ = unix.Close(vd.fd)
			delete(e.devices, k)
			return nil
		}
	}
	return nil
}

func (e *UinputEmulator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for k, vd := range e.devices {
		_, _, _ = unix.Syscall(unix.SYS_IOCTL, uintptr(vd.fd), uintptr(uiDevDestroy), 0)
		_ = unix.Close(vd.fd)
		delete(e.devices, k)
	}
	return nil
}
