// Package coops turns raw coop collection records into the weekly egg
// production summary shown on the dashboard.
package coops

import (
	"sort"
)

const (
	DaysPerWeek = 7
	dayLayout   = "2006-01-02"
)

// Record is one coop collection entry as served by the backend.
type Record struct {
	ID             int64     `json:"id"`
	CoopName       string    `json:"coop_name"`
	EggCount       int       `json:"egg_count"`
	BrokenEggs     int       `json:"broken_eggs"`
	TotalFowls     int       `json:"total_fowls"`
	TotalDeadFowls int       `json:"total_dead_fowls"`
	TotalFeed      float64   `json:"total_feed"`
	Efficiency     float64   `json:"efficiency"`
	Status         string    `json:"status"`
	Notes          string    `json:"notes"`
	CollectionDate Date      `json:"collection_date"`
}

type Day struct {
	Date    string   `json:"date"`
	Records []Record `json:"coops"`
}

// Week holds up to seven distinct collection days, newest first.
type Week struct {
	Days []Day `json:"days"`
}

type CoopTotal struct {
	CoopName string `json:"coop_name"`
	EggCount int    `json:"egg_count"`
}

type Summary struct {
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Totals []CoopTotal `json:"totals"`
	Page   int         `json:"page"`
	Pages  int         `json:"pages"`
}

// Weekly groups records by calendar day (UTC) and chunks the days, newest
// first, into weeks of DaysPerWeek distinct days.
func Weekly(records []Record) []Week {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CollectionDate.After(sorted[j].CollectionDate.Time)
	})

	var days []Day
	index := make(map[string]int)
	for _, r := range sorted {
		key := r.CollectionDate.UTC().Format(dayLayout)
		i, ok := index[key]
		if !ok {
			i = len(days)
			index[key] = i
			days = append(days, Day{Date: key})
		}
		days[i].Records = append(days[i].Records, r)
	}

	weeks := make([]Week, 0, (len(days)+DaysPerWeek-1)/DaysPerWeek)
	for i := 0; i < len(days); i += DaysPerWeek {
		end := min(i+DaysPerWeek, len(days))
		weeks = append(weeks, Week{Days: days[i:end]})
	}
	return weeks
}

// Totals flattens the week per coop name, summing egg counts, highest first.
func (w Week) Totals() []CoopTotal {
	var totals []CoopTotal
	pos := make(map[string]int)
	for _, d := range w.Days {
		for _, r := range d.Records {
			if i, ok := pos[r.CoopName]; ok {
				totals[i].EggCount += r.EggCount
				continue
			}
			pos[r.CoopName] = len(totals)
			totals = append(totals, CoopTotal{CoopName: r.CoopName, EggCount: r.EggCount})
		}
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].EggCount > totals[j].EggCount
	})
	return totals
}

// Range returns the oldest and newest day of the week.
func (w Week) Range() (start, end string) {
	if len(w.Days) == 0 {
		return "", ""
	}
	return w.Days[len(w.Days)-1].Date, w.Days[0].Date
}

// Summarize picks week page (0 is the most recent) out of records.
func Summarize(records []Record, page int) (Summary, bool) {
	weeks := Weekly(records)
	if page < 0 || page >= len(weeks) {
		return Summary{Page: page, Pages: len(weeks)}, false
	}
	w := weeks[page]
	start, end := w.Range()
	return Summary{
		Start:  start,
		End:    end,
		Totals: w.Totals(),
		Page:   page,
		Pages:  len(weeks),
	}, true
}
