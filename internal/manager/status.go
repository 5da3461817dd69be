package manager

import (
	"sort"
	"time"

	"modelrunner/internal/runner"
	"modelrunner/pkg/types"
)

// Status builds the /status payload.
func (m *Manager) Status() types.StatusResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	resp := types.StatusResponse{
		RegistryPath:   m.cfg.RegistryPath,
		RegistrySize:   len(m.entries),
		LastError:      m.lastErr,
		LoadsTotal:     m.loads,
		FailuresTotal:  m.failures,
		EvictionsTotal: m.evictions,
		UptimeSeconds:  int64(now.Sub(m.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	resp.Runners = make([]types.RunnerStatus, 0, len(m.runners))
	for id, r := range m.runners {
		rs := types.RunnerStatus{
			ModelID:    id,
			Backend:    r.Backend(),
			Ready:      r.Ready(),
			Modalities: modalities(r.Capabilities()),
		}
		if err := r.LastError(); err != nil {
			rs.LastError = err.Error()
		}
		if u, ok := r.(interface{ BaseURL() string }); ok {
			rs.Endpoint = u.BaseURL()
		}
		if p, ok := r.(interface{ PID() int }); ok {
			rs.PID = p.PID()
		}
		resp.Runners = append(resp.Runners, rs)
	}
	sort.Slice(resp.Runners, func(i, j int) bool { return resp.Runners[i].ModelID < resp.Runners[j].ModelID })
	return resp
}

func modalities(c runner.Capabilities) []string {
	var out []string
	for _, mod := range []runner.Modality{runner.ModalityText, runner.ModalityVision, runner.ModalityAudio} {
		if c.Supports(mod) {
			out = append(out, string(mod))
		}
	}
	return out
}
