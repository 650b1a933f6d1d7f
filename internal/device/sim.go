package device

import (
	"context"
	"sync"
	"time"
)

// Sim is an in-process CommandPort used by the host binary when no real
// hardware is attached, and by tests. Latency applies per operation;
// Fail lets callers inject an error for a named operation (keyed by
// "power_on", "handshake", "read_version", "transfer", "read_memory").
type Sim struct {
	Latency time.Duration
	Version string

	mu   sync.Mutex
	fail map[string]error
}

func NewSim(latency time.Duration) *Sim {
	return &Sim{Latency: latency, Version: "bl-2.4.1", fail: map[string]error{}}
}

// Fail arms a one-shot error for the named operation.
func (s *Sim) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[op] = err
}

func (s *Sim) step(ctx context.Context, op string) error {
	s.mu.Lock()
	err, ok := s.fail[op]
	if ok {
		delete(s.fail, op)
	}
	s.mu.Unlock()
	if ok {
		return err
	}
	if s.Latency > 0 {
		select {
		case <-time.After(s.Latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return ctx.Err()
}

func (s *Sim) PowerOn(ctx context.Context, output int) error  { return s.step(ctx, "power_on") }
func (s *Sim) PowerOff(ctx context.Context, output int) error { return s.step(ctx, "power_off") }
func (s *Sim) SendHandshake(ctx context.Context) error        { return s.step(ctx, "handshake") }

func (s *Sim) ReadVersion(ctx context.Context) (string, error) {
	if err := s.step(ctx, "read_version"); err != nil {
		return "", err
	}
	return s.Version, nil
}

func (s *Sim) TransferPayload(ctx context.Context, p Payload) error {
	return s.step(ctx, "transfer")
}

func (s *Sim) ReadMemoryRegion(ctx context.Context, start, length uint32, progress func(done int64)) ([]byte, error) {
	if err := s.step(ctx, "read_memory"); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	const chunk = 4096
	for off := 0; off < len(buf); off += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := off + chunk
		if end > len(buf) {
			end = len(buf)
		}
		for i := off; i < end; i++ {
			buf[i] = byte(start + uint32(i))
		}
		if progress != nil {
			progress(int64(end))
		}
	}
	return buf, nil
}
