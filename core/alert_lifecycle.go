package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition reports a disallowed alert state transition
var ErrInvalidTransition = errors.New("invalid alert state transition")

// validTransitions defines allowed state transitions for alerts.
// Acknowledgement is optional: open may resolve directly.
var validTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusOpen:         {AlertStatusAcknowledged, AlertStatusResolved},
	AlertStatusAcknowledged: {AlertStatusResolved},
	AlertStatusResolved:     {}, // Final state - no transitions allowed
}

// TransitionTo validates and executes an alert state transition.
// Returns error if transition is invalid.
func (a *Alert) TransitionTo(newStatus AlertStatus) error {
	if newStatus == "" {
		return errors.New("new status cannot be empty")
	}
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid alert status: %s", newStatus)
	}

	allowed, exists := validTransitions[a.Status]
	if !exists {
		return fmt.Errorf("unknown current status: %s", a.Status)
	}
	for _, status := range allowed {
		if status == newStatus {
			a.Status = newStatus
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s (allowed: %v)", ErrInvalidTransition, a.Status, newStatus, allowed)
}

// CanTransitionTo checks if a transition is allowed without executing it
func (a *Alert) CanTransitionTo(newStatus AlertStatus) bool {
	if !newStatus.IsValid() {
		return false
	}
	for _, status := range validTransitions[a.Status] {
		if status == newStatus {
			return true
		}
	}
	return false
}

// IsFinalState checks if the alert is in a final state
func (a *Alert) IsFinalState() bool {
	allowed, exists := validTransitions[a.Status]
	return exists && len(allowed) == 0
}

// Acknowledge transitions the alert to acknowledged and records who/when.
// The rule keeps accumulating occurrences on an acknowledged alert.
func (a *Alert) Acknowledge(by string) error {
	if by == "" {
		return errors.New("acknowledger cannot be empty")
	}
	if err := a.TransitionTo(AlertStatusAcknowledged); err != nil {
		return err
	}
	a.Acknowledgements = append(a.Acknowledgements, Acknowledgement{
		By: by,
		At: time.Now().UTC(),
	})
	return nil
}

// Resolve transitions the alert to the terminal resolved state
func (a *Alert) Resolve(by, notes string) error {
	if by == "" {
		return errors.New("resolver cannot be empty")
	}
	if err := a.TransitionTo(AlertStatusResolved); err != nil {
		return err
	}
	a.Resolution = &Resolution{
		By:    by,
		Notes: notes,
		At:    time.Now().UTC(),
	}
	return nil
}
