package drift

import (
	"sort"
	"strconv"

	"github.com/automatesecurity/masat/internal/types"
)

// OpenPorts extracts the distinct open ports recorded in a run's finding
// evidence, ordered numerically where possible.
func OpenPorts(run types.Run) []types.PortExposure {
	seen := map[string]bool{}
	var out []types.PortExposure
	for _, f := range run.Findings {
		port := f.Evidence[types.EvidencePort]
		if port == "" || seen[port] {
			continue
		}
		seen[port] = true
		out = append(out, types.PortExposure{
			Port:    port,
			Service: f.Evidence[types.EvidenceService],
			Version: f.Evidence[types.EvidenceVersion],
		})
	}
	sort.Slice(out, func(i, j int) bool { return portLess(out[i].Port, out[j].Port) })
	return out
}

// ServerHeader returns the first server-header evidence recorded in the
// run, or "" when none was observed. Findings are scanned in run order so
// the result is deterministic for an immutable run.
func ServerHeader(run types.Run) string {
	for _, f := range run.Findings {
		if h := f.Evidence[types.EvidenceServerHeader]; h != "" {
			return h
		}
	}
	return ""
}

// DiffExposure computes the symmetric port difference and server-header
// change between two runs.
func DiffExposure(oldRun, newRun types.Run) Exposure {
	oldPorts := portSet(oldRun)
	newPorts := portSet(newRun)

	exp := Exposure{
		AddedPorts:   sortedDiff(newPorts, oldPorts),
		RemovedPorts: sortedDiff(oldPorts, newPorts),
	}
	oldHeader := ServerHeader(oldRun)
	newHeader := ServerHeader(newRun)
	if oldHeader != newHeader {
		exp.ServerHeaderChanged = true
		exp.OldServerHeader = oldHeader
		exp.NewServerHeader = newHeader
	}
	return exp
}

func portSet(run types.Run) map[string]bool {
	set := map[string]bool{}
	for _, p := range OpenPorts(run) {
		set[p.Port] = true
	}
	return set
}

// sortedDiff returns the members of a absent from b as sorted unique
// strings.
func sortedDiff(a, b map[string]bool) []string {
	out := []string{}
	for p := range a {
		if !b[p] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return portLess(out[i], out[j]) })
	return out
}

// portLess orders numeric ports numerically and falls back to lexical
// ordering for anything else (e.g. "80/tcp" style values).
func portLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}
