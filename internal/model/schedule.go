package model

import (
    "errors"
    "fmt"
    "strconv"
    "strings"
)

// Weekday is a Monday-first day index, 0 (Monday) through 6 (Sunday).
type Weekday int

const (
    Monday Weekday = iota
    Tuesday
    Wednesday
    Thursday
    Friday
    Saturday
    Sunday
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Valid reports whether d is within [Monday, Sunday].
func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

func (d Weekday) String() string {
    if !d.Valid() {
        return "Weekday(" + strconv.Itoa(int(d)) + ")"
    }
    return weekdayNames[d]
}

// TimeOfDay is a wall-clock time stored as seconds since midnight.
type TimeOfDay int

// ErrInvalidTime is returned by ParseTimeOfDay for malformed input.
var ErrInvalidTime = errors.New("invalid time of day")

// ParseTimeOfDay accepts HH:MM or HH:MM:SS, optionally followed by a
// fractional second part which is discarded (MySQL TIME(6) output).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
    s = strings.TrimSpace(s)
    if i := strings.IndexByte(s, '.'); i >= 0 {
        s = s[:i]
    }
    parts := strings.Split(s, ":")
    if len(parts) != 2 && len(parts) != 3 {
        return 0, ErrInvalidTime
    }
    limits := []int{23, 59, 59}
    vals := make([]int, 3)
    for i, p := range parts {
        if len(p) != 2 {
            return 0, ErrInvalidTime
        }
        hi, lo := int(p[0])-'0', int(p[1])-'0'
        if hi < 0 || hi > 9 || lo < 0 || lo > 9 {
            return 0, ErrInvalidTime
        }
        n := hi*10 + lo
        if n > limits[i] {
            return 0, ErrInvalidTime
        }
        vals[i] = n
    }
    return TimeOfDay(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// String formats the time as HH:MM:SS.
func (t TimeOfDay) String() string {
    v := int(t)
    return fmt.Sprintf("%02d:%02d:%02d", v/3600, (v%3600)/60, v%60)
}

// Schedule is one dispensing event: a container drops pills on Weekday at Time.
//
// Fields:
//  ID          – primary key identifier.
//  ContainerID – container the schedule belongs to.
//  Weekday     – Monday-first weekday index.
//  Time        – time of day.
type Schedule struct {
    ID          uint64    // schedules.id
    ContainerID uint64    // schedules.container_id
    Weekday     Weekday   // schedules.weekday
    Time        TimeOfDay // schedules.time_of_day
}

// ScheduleEntry is the input form of a schedule before it is persisted.
type ScheduleEntry struct {
    Weekday Weekday
    Time    TimeOfDay
}
