package tui

import (
	"time"

	"github.com/Veraticus/the-trucks-must-roll/internal/model"
)

type tickMsg time.Time

type queueLoadedMsg struct {
	err      error
	loadedAt time.Time
	records  []model.ProcessRecord
	counts   model.DailyCounterState
}
