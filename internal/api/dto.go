package api

import (
	"fmt"
	"time"

	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/service"
)

// frequencyPayload is the wire form of a recurrence rule. Weekdays use
// 0-6 with Sunday as 0, matching time.Weekday.
type frequencyPayload struct {
	Kind         string `json:"kind"`
	Weekdays     []int  `json:"weekdays,omitempty"`
	IntervalDays int    `json:"intervalDays,omitempty"`
}

func (p frequencyPayload) toModel() (model.Frequency, error) {
	switch model.FrequencyKind(p.Kind) {
	case model.FrequencyDaily:
		return model.Daily(), nil
	case model.FrequencyWeekdaysOnly:
		return model.WeekdaysOnly(), nil
	case model.FrequencyWeekdaySet:
		days := make([]time.Weekday, 0, len(p.Weekdays))
		for _, d := range p.Weekdays {
			days = append(days, time.Weekday(d))
		}
		freq := model.WeekdaySet(days...)
		return freq, freq.Validate()
	case model.FrequencyInterval:
		freq := model.EveryNDays(p.IntervalDays)
		return freq, freq.Validate()
	default:
		return model.Frequency{}, fmt.Errorf("%w: %q", model.ErrInvalidFrequencyKind, p.Kind)
	}
}

func frequencyFromModel(f model.Frequency) *frequencyPayload {
	if f.Kind == "" {
		return nil
	}
	payload := &frequencyPayload{Kind: string(f.Kind), IntervalDays: f.IntervalDays}
	for _, d := range f.Weekdays {
		payload.Weekdays = append(payload.Weekdays, int(d))
	}
	return payload
}

type habitResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Color       string            `json:"color,omitempty"`
	TargetCount int               `json:"targetCount"`
	Frequency   *frequencyPayload `json:"frequency"`
	Streak      int               `json:"streak"`
	BestStreak  int               `json:"bestStreak"`
	NextDue     model.Day         `json:"nextDue"`
	IsActive    bool              `json:"isActive"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func habitFromModel(h model.Habit) habitResponse {
	return habitResponse{
		ID:          h.ID,
		Name:        h.Name,
		Description: h.Description,
		Icon:        h.Icon,
		Color:       h.Color,
		TargetCount: h.TargetCount,
		Frequency:   frequencyFromModel(h.Frequency),
		Streak:      h.Streak,
		BestStreak:  h.BestStreak,
		NextDue:     h.NextDue,
		IsActive:    h.IsActive,
		CreatedAt:   h.CreatedAt,
		UpdatedAt:   h.UpdatedAt,
	}
}

func habitsFromModel(habits []model.Habit) []habitResponse {
	out := make([]habitResponse, 0, len(habits))
	for _, h := range habits {
		out = append(out, habitFromModel(h))
	}
	return out
}

type taskResponse struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	Status       string            `json:"status"`
	EnergyPoints int               `json:"energyPoints"`
	ProjectID    string            `json:"projectId,omitempty"`
	IsRecurring  bool              `json:"isRecurring"`
	Frequency    *frequencyPayload `json:"frequency,omitempty"`
	Streak       int               `json:"streak"`
	BestStreak   int               `json:"bestStreak"`
	NextDue      model.Day         `json:"nextDue"`

	PlannedForToday bool      `json:"plannedForToday"`
	PlannedDate     model.Day `json:"plannedDate"`
	DueDate         model.Day `json:"dueDate"`
	MissedDays      int       `json:"missedDays"`

	PostponeCount  int        `json:"postponeCount"`
	PostponeReason string     `json:"postponeReason,omitempty"`
	PostponedAt    *time.Time `json:"postponedAt,omitempty"`
	RescheduleDate model.Day  `json:"rescheduleDate"`

	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func taskFromModel(t model.Task) taskResponse {
	resp := taskResponse{
		ID:              t.ID,
		Description:     t.Description,
		Status:          string(t.Status),
		EnergyPoints:    t.EnergyPoints,
		ProjectID:       t.ProjectID,
		IsRecurring:     t.IsRecurring,
		Streak:          t.Streak,
		BestStreak:      t.BestStreak,
		NextDue:         t.NextDue,
		PlannedForToday: t.PlannedForToday,
		PlannedDate:     t.PlannedDate,
		DueDate:         t.DueDate,
		MissedDays:      t.MissedDays,
		PostponeCount:   t.PostponeCount,
		PostponeReason:  t.PostponeReason,
		PostponedAt:     t.PostponedAt,
		RescheduleDate:  t.RescheduleDate,
		CompletedAt:     t.CompletedAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if t.IsRecurring {
		resp.Frequency = frequencyFromModel(t.Frequency)
	}
	return resp
}

func tasksFromModel(tasks []model.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskFromModel(t))
	}
	return out
}

type completionResponse struct {
	ID          string    `json:"id"`
	Day         model.Day `json:"day"`
	Count       int       `json:"count"`
	Notes       string    `json:"notes,omitempty"`
	CompletedAt time.Time `json:"completedAt"`
	Streak      int       `json:"streak"`
	BestStreak  int       `json:"bestStreak"`
	IsNewRecord bool      `json:"isNewRecord"`
	Duplicate   bool      `json:"duplicate"`
}

func completionFromResult(r service.CompletionResult) completionResponse {
	return completionResponse{
		ID:          r.Completion.ID,
		Day:         r.Completion.Day,
		Count:       r.Completion.Count,
		Notes:       r.Completion.Notes,
		CompletedAt: r.Completion.CompletedAt,
		Streak:      r.Streak,
		BestStreak:  r.BestStreak,
		IsNewRecord: r.IsNewRecord,
		Duplicate:   r.Duplicate,
	}
}

type historyResponse struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func historyFromModel(entries []model.HistoryEntry) []historyResponse {
	out := make([]historyResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyResponse{
			ID:        e.ID,
			Action:    string(e.Action),
			Details:   e.Details,
			Timestamp: e.Timestamp,
		})
	}
	return out
}

type summaryResponse struct {
	Day           model.Day      `json:"day"`
	Planned       []taskResponse `json:"planned"`
	Missed        []taskResponse `json:"missed"`
	Completed     []taskResponse `json:"completed"`
	EnergyPlanned int            `json:"energyPlanned"`
	EnergyBudget  int            `json:"energyBudget"`
}

func summaryFromModel(s service.DaySummary) summaryResponse {
	return summaryResponse{
		Day:           s.Day,
		Planned:       tasksFromModel(s.Planned),
		Missed:        tasksFromModel(s.Missed),
		Completed:     tasksFromModel(s.Completed),
		EnergyPlanned: s.EnergyPlanned,
		EnergyBudget:  s.EnergyBudget,
	}
}
