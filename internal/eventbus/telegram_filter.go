package eventbus

// NoiseLevel is a Telegram consumer's configured verbosity (spec.md §4.5
// "Telegram noise filter").
type NoiseLevel string

const (
	NoiseAll       NoiseLevel = "all"
	NoiseImportant NoiseLevel = "important"
	NoiseCritical  NoiseLevel = "critical"
)

// Suppress reports whether ev should be dropped at the given noise level.
func Suppress(level NoiseLevel, ev RuntimeEvent) bool {
	switch level {
	case NoiseAll:
		return false
	case NoiseImportant:
		return suppressImportant(ev)
	case NoiseCritical:
		return suppressCritical(ev)
	default:
		return false
	}
}

func suppressImportant(ev RuntimeEvent) bool {
	switch ev.Type {
	case TypeTaskStart, TypeTaskProgress, TypeAdapterOutput:
		return true
	case TypeTesterActivity:
		return stage(ev) == "started"
	case TypeCIActivity:
		return stage(ev) == "poll-transition"
	default:
		return false
	}
}

func suppressCritical(ev RuntimeEvent) bool {
	if suppressImportant(ev) {
		return true
	}
	switch ev.Type {
	case TypeTerminalOutcome:
		return false
	case TypePhaseUpdate:
		status, _ := ev.Payload["status"].(string)
		return status != "CI_FAILED" && status != "READY_FOR_REVIEW"
	case TypeTaskFinish:
		status, _ := ev.Payload["status"].(string)
		return status != "FAILED"
	case TypeTesterActivity, TypeRecoveryActivity:
		st := stage(ev)
		return st != "failed" && st != "unfixable"
	case TypePRActivity:
		return false
	case TypeCIActivity:
		st := stage(ev)
		return st != "failed" && st != "succeeded" && st != "validation-max-retries"
	default:
		return true
	}
}

func stage(ev RuntimeEvent) string {
	s, _ := ev.Payload["stage"].(string)
	return s
}
