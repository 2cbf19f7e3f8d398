package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidTicketNumber is returned when a string is not "<prefix>-<NN>".
var ErrInvalidTicketNumber = errors.New("invalid ticket number")

// CounterKey is the durable key holding the daily counter state.
const CounterKey = "dailyTokenCounts"

// DailyCounterState is the persisted per-day, per-prefix counter.
type DailyCounterState struct {
	Counts map[string]int `json:"counts"`
	Date   string         `json:"date"`
}

// NewDailyCounterState returns an empty state for the given day (YYYY-MM-DD).
func NewDailyCounterState(day string) DailyCounterState {
	return DailyCounterState{Date: day, Counts: make(map[string]int)}
}

// FormatTicketNumber renders prefix and sequence as "<prefix>-<NN>".
// Numbers above 99 simply grow wider.
func FormatTicketNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%02d", prefix, seq)
}

// ParseTicketNumber splits a ticket number into its prefix and sequence.
func ParseTicketNumber(ticket string) (string, int, error) {
	idx := strings.LastIndex(ticket, "-")
	if idx <= 0 || idx == len(ticket)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTicketNumber, ticket)
	}
	seq, err := strconv.Atoi(ticket[idx+1:])
	if err != nil || seq <= 0 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidTicketNumber, ticket)
	}
	return ticket[:idx], seq, nil
}
