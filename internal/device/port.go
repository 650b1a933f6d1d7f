// Package device defines the narrow command port the orchestrator drives
// hardware through. The concrete transport (serial line, socat TCP
// bridge, Modbus power unit) lives behind this interface and is owned by
// an external collaborator.
package device

import "context"

// Payload names a binary the bootloader accepts over the wire.
type Payload string

const (
	PayloadStager Payload = "stager"
	PayloadDumper Payload = "dumper"
)

// CommandPort exposes the stage-shaped operations of the target device.
// Implementations report transient conditions by wrapping
// domain.ErrTransientDevice and unrecoverable ones with
// domain.ErrFatalDevice; anything else is classified by the retry policy.
type CommandPort interface {
	PowerOn(ctx context.Context, output int) error
	PowerOff(ctx context.Context, output int) error
	SendHandshake(ctx context.Context) error
	ReadVersion(ctx context.Context) (string, error)
	TransferPayload(ctx context.Context, p Payload) error
	// ReadMemoryRegion streams the region and reports bytes transferred
	// through progress (may be nil).
	ReadMemoryRegion(ctx context.Context, start, length uint32, progress func(done int64)) ([]byte, error)
}
