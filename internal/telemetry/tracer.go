package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Bus keys use the "bus." prefix, network filesystem keys
// use "netfs.", admin requests use "http.".
const (
	AttrClientIP = "client.ip"

	AttrBusType  = "bus.type"
	AttrSlot     = "bus.slot"
	AttrDevice   = "bus.device"
	AttrCommand  = "bus.command"
	AttrOp       = "bus.op"
	AttrAux1     = "bus.aux1"
	AttrAux2     = "bus.aux2"
	AttrResult   = "bus.result"
	AttrErrCode  = "bus.error_code"
	AttrPayload  = "bus.payload_len"
	AttrBusState = "bus.state"

	AttrScheme       = "netfs.scheme"
	AttrHost         = "netfs.host"
	AttrPath         = "netfs.path"
	AttrOffset       = "netfs.offset"
	AttrCount        = "netfs.count"
	AttrBytesRead    = "netfs.bytes_read"
	AttrBytesWritten = "netfs.bytes_written"
	AttrEOF          = "netfs.eof"
	AttrAttempt      = "netfs.attempt"
	AttrDirectory    = "netfs.directory"

	AttrBucket = "storage.bucket"
	AttrKey    = "storage.key"
	AttrRegion = "storage.region"

	AttrRoute    = "http.route"
	AttrHostSlot = "fuji.host_slot"
	AttrDiskSlot = "fuji.disk_slot"
)

// Span names. Format: <component>.<operation>
const (
	SpanBusDispatch = "bus.dispatch"

	SpanNetFSOpen    = "netfs.open"
	SpanNetFSRead    = "netfs.read"
	SpanNetFSWrite   = "netfs.write"
	SpanNetFSClose   = "netfs.close"
	SpanNetFSExtOp   = "netfs.extended"
	SpanNetFSListDir = "netfs.list"

	SpanHTTPRequest = "controlplane.request"
	SpanBrowse      = "controlplane.browse"
	SpanPrint       = "controlplane.print"
	SpanMountAll    = "fuji.mount_all"
)

func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

func BusType(t string) attribute.KeyValue {
	return attribute.String(AttrBusType, t)
}

// Slot renders the device slot the way bus traces print it (0x31).
func Slot(slot uint8) attribute.KeyValue {
	return attribute.String(AttrSlot, fmt.Sprintf("0x%02X", slot))
}

func Device(name string) attribute.KeyValue {
	return attribute.String(AttrDevice, name)
}

func Command(code byte) attribute.KeyValue {
	return attribute.String(AttrCommand, fmt.Sprintf("0x%02X", code))
}

func Op(name string) attribute.KeyValue {
	return attribute.String(AttrOp, name)
}

func Aux(aux1, aux2 byte) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAux1, int(aux1)),
		attribute.Int(AttrAux2, int(aux2)),
	}
}

func Result(r string) attribute.KeyValue {
	return attribute.String(AttrResult, r)
}

// ErrorCode is the legacy status byte reported to the host.
func ErrorCode(code byte) attribute.KeyValue {
	return attribute.Int(AttrErrCode, int(code))
}

func PayloadLen(n int) attribute.KeyValue {
	return attribute.Int(AttrPayload, n)
}

func Scheme(s string) attribute.KeyValue {
	return attribute.String(AttrScheme, s)
}

func Host(h string) attribute.KeyValue {
	return attribute.String(AttrHost, h)
}

func Path(p string) attribute.KeyValue {
	return attribute.String(AttrPath, p)
}

func Offset(off int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, off)
}

func Count(n int) attribute.KeyValue {
	return attribute.Int(AttrCount, n)
}

func BytesRead(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesRead, n)
}

func BytesWritten(n int) attribute.KeyValue {
	return attribute.Int(AttrBytesWritten, n)
}

func EOF(eof bool) attribute.KeyValue {
	return attribute.Bool(AttrEOF, eof)
}

func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

func Directory(dir bool) attribute.KeyValue {
	return attribute.Bool(AttrDirectory, dir)
}

func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

func Region(r string) attribute.KeyValue {
	return attribute.String(AttrRegion, r)
}

func Route(r string) attribute.KeyValue {
	return attribute.String(AttrRoute, r)
}

func HostSlot(i int) attribute.KeyValue {
	return attribute.Int(AttrHostSlot, i)
}

func DiskSlot(i int) attribute.KeyValue {
	return attribute.Int(AttrDiskSlot, i)
}

// StartDispatchSpan starts a span for one bus command dispatch.
func StartDispatchSpan(ctx context.Context, slot uint8, code byte, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+2)
	all = append(all, Slot(slot), Command(code))
	all = append(all, attrs...)
	return StartSpan(ctx, SpanBusDispatch, trace.WithAttributes(all...))
}

// StartNetFSSpan starts a span for a network filesystem operation.
func StartNetFSSpan(ctx context.Context, name, scheme string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, Scheme(scheme))
	all = append(all, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}

// StartHTTPSpan starts a server span for an admin request.
func StartHTTPSpan(ctx context.Context, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	all = append(all, Route(route))
	all = append(all, attrs...)
	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(all...), trace.WithSpanKind(trace.SpanKindServer))
}
