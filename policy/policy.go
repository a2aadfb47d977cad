// Package policy defines the resource caps applied to every tool
// invocation: wall-clock timeout, output size, CPU-to-fuel translation for
// Wasm, and the advisory network posture.
package policy

// NetworkPosture controls whether an executor is granted network access.
// Sub-process and Wasm sandboxes inherit the host network regardless of
// this value: it is advisory only, and no executor reads it.
type NetworkPosture string

const (
	NetworkDeny        NetworkPosture = "deny"
	NetworkEgressProxy NetworkPosture = "egress-proxy"
	NetworkAllow       NetworkPosture = "allow"
)

// Default resource caps applied when a manifest's policy is absent or
// partially specified.
const (
	DefaultTimeoutMs      = 8000
	DefaultMemoryBytes    = 128 * 1024 * 1024
	DefaultCPUTimeMs      = 2000
	DefaultMaxOutputBytes = 256 * 1024

	// minFuel is the floor applied to the CPU-time-to-fuel translation so
	// very small cpu_time_ms budgets still get a workable fuel allowance.
	minFuel         = 1_000_000
	fuelPerCPUMsMs  = 10_000
)

// Policy caps a single tool's resource usage.
type Policy struct {
	TimeoutMs      int64          `json:"timeout_ms,omitempty"`
	MemoryBytes    int64          `json:"memory_bytes,omitempty"`
	CPUTimeMs      int64          `json:"cpu_time_ms,omitempty"`
	MaxOutputBytes int64          `json:"max_output_bytes,omitempty"`
	Network        NetworkPosture `json:"network,omitempty"`
	PreopenTmp     bool           `json:"preopen_tmp,omitempty"`
	EnvAllowlist   []string       `json:"env_allowlist,omitempty"`
}

// Defaults returns the policy applied when a manifest omits one entirely.
func Defaults() Policy {
	return Policy{
		TimeoutMs:      DefaultTimeoutMs,
		MemoryBytes:    DefaultMemoryBytes,
		CPUTimeMs:      DefaultCPUTimeMs,
		MaxOutputBytes: DefaultMaxOutputBytes,
		Network:        NetworkDeny,
		PreopenTmp:     false,
	}
}

// Merge overlays override onto base: any zero-valued field in override is
// left at base's value. Used to apply defaults under a manifest's partial
// policy.
func Merge(base, override Policy) Policy {
	out := base
	if override.TimeoutMs != 0 {
		out.TimeoutMs = override.TimeoutMs
	}
	if override.MemoryBytes != 0 {
		out.MemoryBytes = override.MemoryBytes
	}
	if override.CPUTimeMs != 0 {
		out.CPUTimeMs = override.CPUTimeMs
	}
	if override.MaxOutputBytes != 0 {
		out.MaxOutputBytes = override.MaxOutputBytes
	}
	if override.Network != "" {
		out.Network = override.Network
	}
	if override.PreopenTmp {
		out.PreopenTmp = override.PreopenTmp
	}
	if len(override.EnvAllowlist) > 0 {
		out.EnvAllowlist = override.EnvAllowlist
	}
	return out
}

// FuelBudget translates the policy's cpu_time_ms into a Wasmtime fuel
// budget: max(1_000_000, cpu_time_ms * 10_000).
func (p Policy) FuelBudget() uint64 {
	fuel := p.CPUTimeMs * fuelPerCPUMsMs
	if fuel < minFuel {
		return minFuel
	}
	return uint64(fuel)
}
