package storage

import "errors"

// Storage error constants
var (
	// ErrRuleNotFound is returned when a detection rule is not found
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule is returned when creating a rule whose name already exists
	ErrDuplicateRule = errors.New("rule already exists")

	// ErrAlertNotFound is returned when an alert is not found
	ErrAlertNotFound = errors.New("alert not found")

	// ErrEventNotFound is returned when an event is not found
	ErrEventNotFound = errors.New("event not found")

	// ErrIncidentNotFound is returned when an incident is not found
	ErrIncidentNotFound = errors.New("incident not found")
)
