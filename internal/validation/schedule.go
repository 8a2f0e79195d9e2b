package validation

import "github.com/iliyamo/pill-dispenser/internal/model"

// ScheduleInput is an unvalidated schedule entry as received from a client.
type ScheduleInput struct {
	Weekday int
	Time    string
}

// ScheduleEntries validates a replacement schedule list.  Each entry must
// carry a weekday in [0,6] and a parseable time, and no (weekday, time)
// pair may repeat.  Replacement deletes the container's previous rows first,
// so only the submitted list itself is checked for duplicates.
func ScheduleEntries(in []ScheduleInput) ([]model.ScheduleEntry, Violations) {
	var v Violations
	out := make([]model.ScheduleEntry, 0, len(in))
	seen := make(map[model.ScheduleEntry]bool, len(in))
	for _, s := range in {
		day := model.Weekday(s.Weekday)
		if !day.Valid() {
			v.add(MsgWeekdayRange)
			continue
		}
		tod, err := model.ParseTimeOfDay(s.Time)
		if err != nil {
			v.add(MsgTimeInvalid)
			continue
		}
		e := model.ScheduleEntry{Weekday: day, Time: tod}
		if seen[e] {
			v.add(MsgScheduleExists)
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, v
}
