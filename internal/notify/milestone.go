// Package notify fires one-shot countdown milestone alerts for a watched game.
package notify

import "time"

// Milestone is a remaining-time threshold that triggers one alert.
type Milestone struct {
	Name      string
	Threshold time.Duration
	Message   string
}

// Milestones are evaluated in order; each fires once remaining <= Threshold.
var Milestones = [...]Milestone{
	{Name: "one_hour", Threshold: time.Hour, Message: "starting soon"},
	{Name: "ten_minutes", Threshold: 10 * time.Minute, Message: "ten minutes left"},
	{Name: "one_minute", Threshold: time.Minute, Message: "one minute left"},
	{Name: "start", Threshold: 0, Message: "live now"},
}

// Flags are the per-observer one-shot flags, one per milestone. They never reset;
// a new observer starts with a zero Flags.
type Flags struct {
	fired [len(Milestones)]bool
}

// Due marks and returns the milestones that remaining has newly crossed.
func (f *Flags) Due(remaining time.Duration) []Milestone {
	var due []Milestone
	for i, m := range Milestones {
		if f.fired[i] || remaining > m.Threshold {
			continue
		}
		f.fired[i] = true
		due = append(due, m)
	}
	return due
}

// Fired reports whether the named milestone has fired.
func (f *Flags) Fired(name string) bool {
	for i, m := range Milestones {
		if m.Name == name {
			return f.fired[i]
		}
	}
	return false
}
