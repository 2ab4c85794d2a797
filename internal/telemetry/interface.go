package telemetry

import (
	"context"
	"time"
)

// Fetcher retrieves one telemetry snapshot from the monitor
type Fetcher interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// Section identifies one telemetry group on the monitor
type Section string

const (
	SectionPanel   Section = "panel"
	SectionBattery Section = "bateria"
	SectionLoad    Section = "carga"
)

// Sections lists every section in display order
var Sections = []Section{SectionPanel, SectionBattery, SectionLoad}

// LED is the status category reported for a section, e.g. "ok" or "error"
type LED string

// Reading holds the values reported for one section
type Reading struct {
	LED     LED     `json:"led"`
	Voltage float64 `json:"voltaje"`
	Current float64 `json:"corriente"`
	Power   float64 `json:"potencia"`
}

// Snapshot is one /data payload
type Snapshot struct {
	FetchedAt time.Time `json:"-"`
	Panel     Reading   `json:"panel"`
	Battery   Reading   `json:"bateria"`
	Load      Reading   `json:"carga"`
}

// Reading returns the reading for section, or nil for an unknown section
func (s *Snapshot) Reading(section Section) *Reading {
	switch section {
	case SectionPanel:
		return &s.Panel
	case SectionBattery:
		return &s.Battery
	case SectionLoad:
		return &s.Load
	default:
		return nil
	}
}
