package dispatch

// Stage is a step of the dispatch pipeline. Every submitted action ends in
// StageReported or StageRejected.
type Stage uint8

const (
	StageReceived Stage = iota
	StagePermissionChecked
	StageValidated
	StageLocalOnly
	StageBroadcast
	StageApplied
	StageReported
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StageReceived:
		return "received"
	case StagePermissionChecked:
		return "permission_checked"
	case StageValidated:
		return "validated"
	case StageLocalOnly:
		return "local_only"
	case StageBroadcast:
		return "broadcast"
	case StageApplied:
		return "applied"
	case StageReported:
		return "reported"
	default:
		return "rejected"
	}
}

func (d *Dispatcher) stage(s Stage) {
	d.metrics.Stages.WithLabelValues(s.String()).Inc()
}
