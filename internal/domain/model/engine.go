package model

import (
	"errors"
	"slices"
	"strings"
	"time"
)

// ErrNoEligibleEngines is returned when no idle engine can take a job.
var ErrNoEligibleEngines = errors.New("no eligible engines available")

// EngineStatus represents the availability of a transcoding engine.
type EngineStatus string

const (
	// EngineStatusIdle indicates an engine is free to take a job.
	EngineStatusIdle EngineStatus = "idle"
	// EngineStatusBusy indicates an engine is executing an assigned job.
	EngineStatusBusy EngineStatus = "busy"
)

// Valid returns true if the EngineStatus is valid.
func (s EngineStatus) Valid() bool {
	return s == EngineStatusIdle || s == EngineStatusBusy
}

// Engine represents a transcoding worker known to the dispatcher. Capability
// fields are reported by the worker itself; Status and CurrentJobID are owned
// by the server and survive heartbeat upserts.
type Engine struct {
	ID                string       `json:"engine_id"`
	Hostname          string       `json:"hostname,omitempty"`
	Status            EngineStatus `json:"status"`
	BenchmarkTime     *float64     `json:"benchmark_time,omitempty"` // seconds, lower is faster
	StreamingSupport  bool         `json:"streaming_support"`
	StorageCapacityGB float64      `json:"storage_capacity_gb"`
	LastHeartbeat     time.Time    `json:"last_heartbeat"`
	CurrentJobID      *string      `json:"current_job_id,omitempty"`
	Encoders          []string     `json:"encoders,omitempty"`
	Decoders          []string     `json:"decoders,omitempty"`
	HWAccels          []string     `json:"hwaccels,omitempty"`
	CPUTemperature    *float64     `json:"cpu_temperature,omitempty"`
}

// Clone returns a deep copy of the engine that is safe to mutate independently.
func (e *Engine) Clone() *Engine {
	if e == nil {
		return nil
	}
	out := *e
	out.BenchmarkTime = clonePtr(e.BenchmarkTime)
	out.CurrentJobID = clonePtr(e.CurrentJobID)
	out.CPUTemperature = clonePtr(e.CPUTemperature)
	out.Encoders = slices.Clone(e.Encoders)
	out.Decoders = slices.Clone(e.Decoders)
	out.HWAccels = slices.Clone(e.HWAccels)
	return &out
}

// Heartbeat is the periodic capability report sent by an engine. Absent
// optional fields reset to their zero values on upsert; the report replaces
// the capability portion of the engine record wholesale.
type Heartbeat struct {
	EngineID          string        `json:"engine_id"`
	Hostname          string        `json:"hostname,omitempty"`
	Status            *EngineStatus `json:"status,omitempty"`
	BenchmarkTime     *float64      `json:"benchmark_time,omitempty"`
	StreamingSupport  *bool         `json:"streaming_support,omitempty"`
	StorageCapacityGB *float64      `json:"storage_capacity_gb,omitempty"`
	Encoders          []string      `json:"encoders,omitempty"`
	Decoders          []string      `json:"decoders,omitempty"`
	HWAccels          []string      `json:"hwaccels,omitempty"`
	CPUTemperature    *float64      `json:"cpu_temperature,omitempty"`
}

// Validate validates the Heartbeat fields.
func (h *Heartbeat) Validate() error {
	if strings.TrimSpace(h.EngineID) == "" {
		return errors.New("engine_id is required")
	}
	if h.Status != nil && !h.Status.Valid() {
		return errors.New("status must be idle or busy")
	}
	if h.BenchmarkTime != nil && *h.BenchmarkTime < 0 {
		return errors.New("benchmark_time must be >= 0")
	}
	if h.StorageCapacityGB != nil && *h.StorageCapacityGB < 0 {
		return errors.New("storage_capacity_gb must be >= 0")
	}
	return nil
}

// BenchmarkResult reports a completed benchmark run for an engine.
type BenchmarkResult struct {
	EngineID      string   `json:"engine_id"`
	BenchmarkTime *float64 `json:"benchmark_time"`
}

// Validate validates the BenchmarkResult fields.
func (r *BenchmarkResult) Validate() error {
	if strings.TrimSpace(r.EngineID) == "" {
		return errors.New("engine_id is required")
	}
	if r.BenchmarkTime == nil {
		return errors.New("benchmark_time is required")
	}
	if *r.BenchmarkTime < 0 {
		return errors.New("benchmark_time must be >= 0")
	}
	return nil
}

// AssignRequest asks the scheduler for work. An empty EngineID lets the
// scheduler consider every idle engine; a non-empty one restricts selection
// to that engine.
type AssignRequest struct {
	EngineID string `json:"engine_id,omitempty"`
}
