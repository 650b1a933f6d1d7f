// Package profile exposes the read-only port the engine consumes
// profiles through. The engine never writes profiles; it resolves and
// validates references at submission time.
package profile

import (
	"errors"
	"fmt"

	"memflow/internal/domain"
)

var ErrNotFound = errors.New("profile not found")

// Store resolves the component profiles a JobProfile references.
type Store interface {
	GetJob(id string) (domain.JobProfile, error)
	GetSerial(id string) (domain.SerialProfile, error)
	GetBridge(id string) (domain.BridgeProfile, error)
	GetPower(id string) (domain.PowerProfile, error)
	GetRegion(id string) (domain.MemoryRegion, error)
}

// ValidateReferences checks that every component a profile references
// resolves, and that the pieces the pipeline depends on are usable.
// All problems are returned, not just the first.
func ValidateReferences(s Store, p domain.JobProfile) []error {
	var errs []error

	if !p.Priority.Valid() {
		errs = append(errs, fmt.Errorf("priority %d out of range", p.Priority))
	}
	if p.OutputDir == "" {
		errs = append(errs, errors.New("output directory is empty"))
	}

	if serial, err := s.GetSerial(p.SerialProfileID); err != nil {
		errs = append(errs, fmt.Errorf("serial profile %q: %w", p.SerialProfileID, err))
	} else if serial.Device == "" {
		errs = append(errs, fmt.Errorf("serial profile %q: empty device path", p.SerialProfileID))
	}

	if bridge, err := s.GetBridge(p.BridgeProfileID); err != nil {
		errs = append(errs, fmt.Errorf("bridge profile %q: %w", p.BridgeProfileID, err))
	} else if bridge.Port <= 0 || bridge.Port > 65535 {
		errs = append(errs, fmt.Errorf("bridge profile %q: port %d out of range", p.BridgeProfileID, bridge.Port))
	}

	if _, err := s.GetPower(p.PowerProfileID); err != nil {
		errs = append(errs, fmt.Errorf("power profile %q: %w", p.PowerProfileID, err))
	}

	if region, err := s.GetRegion(p.MemoryRegionID); err != nil {
		errs = append(errs, fmt.Errorf("memory region %q: %w", p.MemoryRegionID, err))
	} else if region.Length == 0 {
		errs = append(errs, fmt.Errorf("memory region %q: zero length", p.MemoryRegionID))
	}

	return errs
}

// Resolve validates the profile and returns the fully resolved job the
// orchestrator works from.
func Resolve(s Store, p domain.JobProfile) (domain.ResolvedJob, []error) {
	if errs := ValidateReferences(s, p); len(errs) > 0 {
		return domain.ResolvedJob{}, errs
	}
	serial, _ := s.GetSerial(p.SerialProfileID)
	bridge, _ := s.GetBridge(p.BridgeProfileID)
	power, _ := s.GetPower(p.PowerProfileID)
	region, _ := s.GetRegion(p.MemoryRegionID)
	return domain.ResolvedJob{
		Profile: p,
		Serial:  serial,
		Bridge:  bridge,
		Power:   power,
		Region:  region,
	}, nil
}
