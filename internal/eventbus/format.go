package eventbus

import "fmt"

// Format renders ev as the single-line human string a CLI/Telegram consumer
// displays (spec.md §4.5 "Formatting").
func Format(ev RuntimeEvent) string {
	ctx := contextLabel(ev.Routing)
	switch ev.Type {
	case TypeTaskStart:
		return fmt.Sprintf("%s started (%v)", ctx, ev.Payload["assignee"])
	case TypeTaskProgress:
		return fmt.Sprintf("%s %v", ctx, ev.Payload["message"])
	case TypePhaseUpdate:
		if msg, ok := ev.Payload["message"]; ok && msg != nil {
			return fmt.Sprintf("%s phase -> %v: %v", ctx, ev.Payload["status"], msg)
		}
		return fmt.Sprintf("%s phase -> %v", ctx, ev.Payload["status"])
	case TypeTaskFinish:
		return fmt.Sprintf("%s finished (%v): %v", ctx, ev.Payload["status"], ev.Payload["message"])
	case TypeAdapterOutput:
		return fmt.Sprintf("%s [%v] %v", ctx, ev.Payload["stream"], ev.Payload["line"])
	case TypeTesterActivity, TypeRecoveryActivity:
		return fmt.Sprintf("%s %v: %v", ctx, ev.Payload["stage"], ev.Payload["summary"])
	case TypePRActivity, TypeCIActivity:
		return fmt.Sprintf("%s %v: %v", ctx, ev.Payload["stage"], ev.Payload["summary"])
	case TypeTerminalOutcome:
		return fmt.Sprintf("%s %v: %v", ctx, ev.Payload["outcome"], ev.Payload["summary"])
	default:
		return fmt.Sprintf("%s %s", ctx, ev.Type)
	}
}

func contextLabel(r RoutingContext) string {
	switch {
	case r.TaskTitle != "":
		return fmt.Sprintf("[%s/%s]", r.PhaseName, r.TaskTitle)
	case r.PhaseName != "":
		return fmt.Sprintf("[%s]", r.PhaseName)
	case r.ProjectName != "":
		return fmt.Sprintf("[%s]", r.ProjectName)
	default:
		return "[ixado]"
	}
}
