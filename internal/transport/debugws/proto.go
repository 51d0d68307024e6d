package debugws

import (
	"slices"

	"voxelmind.ai/internal/ai/telemetry"
)

const Version = "1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeWelcome   = "WELCOME"
	TypeEvent     = "EVENT"
)

// SubscribeMsg opens a session and may be resent to change the filter.
// Empty Agents or Kinds match everything.
type SubscribeMsg struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	Agents          []uint64         `json:"agents,omitempty"`
	Kinds           []telemetry.Kind `json:"kinds,omitempty"`
}

type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

type EventMsg struct {
	Type  string          `json:"type"`
	Event telemetry.Event `json:"event"`
}

type filter struct {
	agents []uint64
	kinds  []telemetry.Kind
}

func newFilter(sub SubscribeMsg) *filter {
	f := &filter{agents: slices.Clone(sub.Agents), kinds: slices.Clone(sub.Kinds)}
	slices.Sort(f.agents)
	return f
}

func (f *filter) match(e telemetry.Event) bool {
	if len(f.agents) > 0 {
		if _, ok := slices.BinarySearch(f.agents, uint64(e.Agent)); !ok {
			return false
		}
	}
	return len(f.kinds) == 0 || slices.Contains(f.kinds, e.Kind)
}
