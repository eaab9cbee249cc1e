package inspect

import (
	"github.com/nixpig/bgjobs/internal/background"
	"google.golang.org/protobuf/types/known/structpb"
)

// JobSummary is the client-side view of a listed job.
type JobSummary struct {
	ID       string
	Kind     string
	Label    string
	State    string
	Running  bool
	ExitCode int
	Pid      int

	// Percent is progress.Indeterminate when the amount of work is unknown
	// and is only meaningful when HasProgress is set.
	HasProgress bool
	Percent     int
	Description string
}

func jobFields(info background.JobInfo) map[string]any {
	fields := map[string]any{
		"id":        info.ID,
		"kind":      info.Kind.String(),
		"label":     info.Label,
		"state":     info.State.String(),
		"running":   info.State != background.JobStateStopped,
		"exit_code": info.ExitCode,
		"pid":       info.Pid,
	}

	if info.Progress != nil {
		fields["progress"] = map[string]any{
			"total":       info.Progress.Total,
			"done":        info.Progress.Done,
			"percent":     info.Progress.Percent,
			"description": info.Progress.Description,
		}
	}

	return fields
}

func jobSummary(s *structpb.Struct) JobSummary {
	f := s.GetFields()

	summary := JobSummary{
		ID:       f["id"].GetStringValue(),
		Kind:     f["kind"].GetStringValue(),
		Label:    f["label"].GetStringValue(),
		State:    f["state"].GetStringValue(),
		Running:  f["running"].GetBoolValue(),
		ExitCode: int(f["exit_code"].GetNumberValue()),
		Pid:      int(f["pid"].GetNumberValue()),
	}

	if p := f["progress"].GetStructValue(); p != nil {
		summary.HasProgress = true
		summary.Percent = int(p.GetFields()["percent"].GetNumberValue())
		summary.Description = p.GetFields()["description"].GetStringValue()
	}

	return summary
}
