package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"memflow/internal/domain"
)

// File layout for host-provided profile sets. Delays are milliseconds.
type fileDoc struct {
	Serial []struct {
		ID       string `json:"id"`
		Device   string `json:"device"`
		BaudRate int    `json:"baud_rate"`
	} `json:"serial"`
	Bridges []struct {
		ID   string `json:"id"`
		Port int    `json:"port"`
	} `json:"bridges"`
	Power []struct {
		ID     string `json:"id"`
		Output int    `json:"output"`
	} `json:"power"`
	Regions []struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Start  uint32 `json:"start"`
		Length uint32 `json:"length"`
	} `json:"regions"`
	Jobs []struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		SerialProfileID string `json:"serial_profile_id"`
		BridgeProfileID string `json:"bridge_profile_id"`
		PowerProfileID  string `json:"power_profile_id"`
		MemoryRegionID  string `json:"memory_region_id"`
		PowerOnDelayMS  int    `json:"power_on_delay_ms"`
		PowerOffDelayMS int    `json:"power_off_delay_ms"`
		OutputDir       string `json:"output_dir"`
		NamePattern     string `json:"name_pattern"`
		Priority        string `json:"priority"`
		Template        bool   `json:"template"`
	} `json:"jobs"`
}

// LoadFile reads a JSON profile set into a MemoryStore.
func LoadFile(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	store := NewMemoryStore()
	for _, p := range doc.Serial {
		store.PutSerial(domain.SerialProfile{ID: p.ID, Device: p.Device, BaudRate: p.BaudRate})
	}
	for _, p := range doc.Bridges {
		store.PutBridge(domain.BridgeProfile{ID: p.ID, Port: p.Port})
	}
	for _, p := range doc.Power {
		store.PutPower(domain.PowerProfile{ID: p.ID, Output: p.Output})
	}
	for _, r := range doc.Regions {
		store.PutRegion(domain.MemoryRegion{ID: r.ID, Name: r.Name, Start: r.Start, Length: r.Length})
	}
	for _, j := range doc.Jobs {
		priority, ok := domain.ParsePriority(j.Priority)
		if !ok {
			return nil, fmt.Errorf("job profile %s: unknown priority %q", j.ID, j.Priority)
		}
		if !priority.Valid() {
			priority = domain.PriorityNormal
		}
		store.PutJob(domain.JobProfile{
			ID:              j.ID,
			Name:            j.Name,
			SerialProfileID: j.SerialProfileID,
			BridgeProfileID: j.BridgeProfileID,
			PowerProfileID:  j.PowerProfileID,
			MemoryRegionID:  j.MemoryRegionID,
			PowerOnDelay:    time.Duration(j.PowerOnDelayMS) * time.Millisecond,
			PowerOffDelay:   time.Duration(j.PowerOffDelayMS) * time.Millisecond,
			OutputDir:       j.OutputDir,
			NamePattern:     j.NamePattern,
			Priority:        priority,
			Template:        j.Template,
		})
	}
	return store, nil
}
