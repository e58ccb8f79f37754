package runner

// Summary rolls a finished batch up into counts. A batch's wall time is
// bounded by its longest task plus queueing, so MaxDurationMs is the number
// to watch when tuning concurrency.
type Summary struct {
	Succeeded     int
	Failed        int
	Cancelled     int
	TotalTasks    int
	MaxDurationMs int64
}

func Summarize(tasks []Task) Summary {
	s := Summary{TotalTasks: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusCancelled:
			s.Cancelled++
		default:
			s.Failed++
		}
		if t.DurationMs > s.MaxDurationMs {
			s.MaxDurationMs = t.DurationMs
		}
	}
	return s
}

// OK reports whether every task in the batch succeeded.
func (s Summary) OK() bool {
	return s.Failed == 0 && s.Cancelled == 0 && s.Succeeded == s.TotalTasks
}
