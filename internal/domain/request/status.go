package request

import (
	"fmt"
	"strings"
)

type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "inProgress"
	StatusOnHold     Status = "onHold"
	StatusCancelled  Status = "cancelled"
	StatusDelayed    Status = "delayed"
	StatusCompleted  Status = "completed"
)

// AllStatuses lists statuses in workflow order. Consoles bind number keys to this order.
var AllStatuses = []Status{
	StatusSubmitted,
	StatusAssigned,
	StatusInProgress,
	StatusOnHold,
	StatusCancelled,
	StatusDelayed,
	StatusCompleted,
}

// ParseStatus accepts the canonical camelCase value as well as snake/kebab/space
// spellings ("in_progress", "on hold").
func ParseStatus(raw string) (Status, error) {
	key := compactKey(raw)
	if key == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidStatus)
	}
	for _, status := range AllStatuses {
		if compactKey(string(status)) == key {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// IsTerminal reports whether the automatic transition rule must leave the status alone.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) Label() string {
	switch s {
	case StatusInProgress:
		return "In Progress"
	case StatusOnHold:
		return "On Hold"
	case "":
		return "-"
	default:
		value := string(s)
		return strings.ToUpper(value[:1]) + value[1:]
	}
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityModerate Priority = "moderate"
	PriorityHigh     Priority = "high"
)

func ParsePriority(raw string) (Priority, error) {
	switch compactKey(raw) {
	case "low":
		return PriorityLow, nil
	case "moderate", "medium":
		return PriorityModerate, nil
	case "high":
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, raw)
	}
}

func compactKey(raw string) string {
	replacer := strings.NewReplacer("_", "", "-", "", " ", "")
	return strings.ToLower(replacer.Replace(strings.TrimSpace(raw)))
}
