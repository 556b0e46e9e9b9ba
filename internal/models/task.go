package models

import (
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress, TaskDone},
	TaskInProgress: {TaskDone},
}

func ParseTaskStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case TaskPending, TaskInProgress, TaskDone:
		return s, nil
	}
	return "", fmt.Errorf("unknown task status %q", raw)
}

func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type TaskKind string

const (
	TaskCleaning    TaskKind = "cleaning"
	TaskMaintenance TaskKind = "maintenance"
	TaskInspection  TaskKind = "inspection"
	TaskOther       TaskKind = "other"
)

func ParseTaskKind(raw string) (TaskKind, error) {
	k := TaskKind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case TaskCleaning, TaskMaintenance, TaskInspection, TaskOther:
		return k, nil
	case "":
		return TaskOther, nil
	}
	return "", fmt.Errorf("unknown task kind %q", raw)
}

type MaintenanceTask struct {
	ID          int64      `json:"id"`
	ApartmentID int64      `json:"apartment_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Date        time.Time  `json:"date"`
	Status      TaskStatus `json:"status"`
	Kind        TaskKind   `json:"kind"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
