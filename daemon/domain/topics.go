package domain

import "github.com/ruaan-deysel/battcorrelate/daemon/pack"

// Typed eventbus topics for operational events. Telemetry itself does not
// flow over this bus (telemetrypub consumes it directly from
// pack.Engine.Telemetry()); these are health/diagnostic side-channels.
var (
	TopicHealth       = NewTopic[pack.HealthRecord]("pack.health")
	TopicFrameLoss    = NewTopic[FrameLossEvent]("pack.frame_loss")
	TopicSourceReset  = NewTopic[SourceResetEvent]("pack.source_reset")
	TopicStateChange  = NewTopic[StateChangeEvent]("pack.state_change")
)

// FrameLossEvent is published whenever an inbound decode cycle is
// discarded as incomplete.
type FrameLossEvent struct {
	TimestampMs int64
	MissingModules []int
}

// SourceResetEvent is published whenever a decreasing timestamp forces a
// full engine-state reset.
type SourceResetEvent struct {
	PreviousTimestampMs int64
	NewTimestampMs      int64
}

// StateChangeEvent is published whenever the correlation state machine's
// current_state changes between consecutive ticks.
type StateChangeEvent struct {
	TimestampMs int64
	From        pack.State
	To          pack.State
	Latched     bool
}
