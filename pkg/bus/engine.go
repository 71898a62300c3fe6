// Package bus implements the legacy bus engine: a device registry plus the
// per-command state machine that decodes frames from a host and dispatches
// them to the addressed device adapter.
//
// One engine is active per process. The frame format is supplied by a
// Codec (sio, rs232) chosen from configuration at startup; the dispatch
// contract is the same for every bus.
package bus

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/internal/telemetry"
	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// State is the position of the engine in the current command cycle.
type State uint8

const (
	StateIdle State = iota
	StateFrameReceived
	StateDispatched
	StateResponseSent
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFrameReceived:
		return "frame_received"
	case StateDispatched:
		return "dispatched"
	case StateResponseSent:
		return "response_sent"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Metrics records engine activity. A nil Metrics disables collection.
type Metrics interface {
	ObserveDispatch(device, op, result string, duration time.Duration)
	RecordFrameError(reason string)
}

// Engine owns the registry of one bus and runs its command cycle.
type Engine struct {
	codec    Codec
	port     Port
	registry *Registry
	metrics  Metrics
	state    State
}

// NewEngine creates an engine reading frames from port. m may be nil.
func NewEngine(codec Codec, port Port, m Metrics) *Engine {
	return &Engine{
		codec:    codec,
		port:     port,
		registry: NewRegistry(),
		metrics:  m,
	}
}

// Registry returns the engine's device registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Name returns the bus name reported by the codec.
func (e *Engine) Name() string {
	return e.codec.Name()
}

// State returns the current cycle state. Between Service calls it is
// always StateIdle.
func (e *Engine) State() State {
	return e.state
}

// Service runs at most one command cycle. It returns immediately when no
// complete frame is buffered. Errors are frame or port failures; device
// errors never surface here.
func (e *Engine) Service(ctx context.Context) error {
	defer func() { e.state = StateIdle }()

	cmd, err := e.codec.ReadFrame(e.port)
	if err != nil {
		e.recordFrameError("read_frame")
		return fmt.Errorf("%s: read frame: %w", e.codec.Name(), err)
	}
	if cmd == nil {
		return nil
	}
	e.state = StateFrameReceived

	if _, ok := e.registry.Get(cmd.Slot); !ok {
		e.state = StateResponseSent
		return e.codec.WriteResponse(e.port, cmd, Response{Result: ResultAbsent})
	}

	if err := e.codec.Acknowledge(e.port, true); err != nil {
		return fmt.Errorf("%s: ack: %w", e.codec.Name(), err)
	}

	if e.codec.Direction(cmd) == DirToDevice {
		payload, err := e.codec.ReadPayload(e.port, cmd)
		if err != nil {
			e.recordFrameError("payload")
			logger.Debug("Data frame rejected", logger.SlotHex(uint8(cmd.Slot)), logger.Err(err))
			e.state = StateResponseSent
			return e.codec.WriteResponse(e.port, cmd, Response{Result: ResultNak})
		}
		cmd.Payload = payload
	}

	e.state = StateDispatched
	resp := e.Dispatch(ctx, cmd)

	if err := e.codec.WriteResponse(e.port, cmd, resp); err != nil {
		return fmt.Errorf("%s: write response: %w", e.codec.Name(), err)
	}
	e.state = StateResponseSent
	return nil
}

// Dispatch routes cmd to the adapter registered at cmd.Slot and encodes the
// outcome. Exactly one adapter is reached for a registered slot; an empty
// or disabled slot yields ResultAbsent. Adapter panics are recovered into
// ResultError so a faulty device cannot stop the bus.
func (e *Engine) Dispatch(ctx context.Context, cmd *device.Command) (resp Response) {
	a, ok := e.registry.Get(cmd.Slot)
	if !ok {
		return Response{Result: ResultAbsent}
	}

	ctx, span := telemetry.StartDispatchSpan(ctx, uint8(cmd.Slot), cmd.Code,
		telemetry.Device(a.Name()), telemetry.Op(cmd.Op.String()), telemetry.BusType(e.codec.Name()))
	defer span.End()

	lc := logger.FromContext(ctx)
	if lc == nil {
		lc = logger.NewLogContext()
	} else {
		lc = lc.Clone()
	}
	ctx = logger.WithContext(ctx, lc.WithDevice(a.Name(), int(cmd.Slot)).WithCommand(cmd.Op.String()))

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Device panicked during dispatch", "panic", r)
			resp = Response{Result: ResultError, Code: device.CodeGeneral}
		}
		telemetry.SetAttributes(ctx, telemetry.Result(resp.Result.String()), telemetry.ErrorCode(resp.Code))
		if e.metrics != nil {
			e.metrics.ObserveDispatch(a.Name(), cmd.Op.String(), resp.Result.String(), time.Since(start))
		}
	}()

	data, err := e.invoke(ctx, a, cmd)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "Dispatch failed", logger.Err(err))
		return Response{Result: ResultError, Data: data, Code: device.CodeFor(err)}
	}
	return Response{Result: ResultComplete, Data: data, Code: device.CodeSuccess}
}

func (e *Engine) invoke(ctx context.Context, a device.Adapter, cmd *device.Command) ([]byte, error) {
	if cmd.Positioned && (cmd.Op == device.OpRead || cmd.Op == device.OpWrite) {
		if err := a.Point(ctx, cmd.Position); err != nil {
			return nil, err
		}
	}

	switch cmd.Op {
	case device.OpOpen:
		return nil, a.Open(ctx, Target(cmd.Payload), cmd)

	case device.OpClose:
		a.Close()
		return nil, nil

	case device.OpRead:
		buf := make([]byte, cmd.Length)
		n, err := a.Read(ctx, buf)
		if errors.Is(err, io.EOF) && n > 0 {
			err = nil
		}
		return buf[:n], err

	case device.OpWrite:
		_, err := a.Write(ctx, cmd.Payload)
		return nil, err

	case device.OpStatus:
		st := a.Status()
		return st.Bytes(), nil

	case device.OpSpecial:
		buf := make([]byte, cmd.Length)
		n, err := a.Special(ctx, buf, cmd)
		if n > len(buf) {
			n = len(buf)
		}
		return buf[:n], err

	case device.OpDelete:
		return nil, a.Delete(ctx, Target(cmd.Payload), cmd)
	case device.OpRename:
		return nil, a.Rename(ctx, Target(cmd.Payload), cmd)
	case device.OpMkdir:
		return nil, a.Mkdir(ctx, Target(cmd.Payload), cmd)
	case device.OpRmdir:
		return nil, a.Rmdir(ctx, Target(cmd.Payload), cmd)

	case device.OpNote:
		pos, err := a.Note(ctx)
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, pos)
		return out, err

	case device.OpPoint:
		pos := cmd.Aux32()
		if len(cmd.Payload) >= 3 {
			pos = uint32(cmd.Payload[0]) | uint32(cmd.Payload[1])<<8 | uint32(cmd.Payload[2])<<16
		}
		return nil, a.Point(ctx, pos)

	default:
		return nil, derrors.Unsupported(cmd.Op.String())
	}
}

// Shutdown closes every device on the bus.
func (e *Engine) Shutdown() {
	logger.Info("Shutting down bus", logger.KeyBus, e.codec.Name(), "devices", e.registry.Len())
	e.registry.Shutdown()
}

func (e *Engine) recordFrameError(reason string) {
	if e.metrics != nil {
		e.metrics.RecordFrameError(reason)
	}
}

// Target extracts a device spec ("N:TNFS://host/path") from a fixed-size
// data frame: everything up to the first NUL or end-of-line byte, with
// surrounding spaces removed.
func Target(payload []byte) string {
	end := len(payload)
	for i, b := range payload {
		if b == 0x00 || b == '\r' || b == '\n' || b == 0x9B {
			end = i
			break
		}
	}
	return string(bytes.TrimSpace(payload[:end]))
}
