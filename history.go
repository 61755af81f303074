package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/asdine/storm/v3"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const HISTORY_LIMIT = 50

// RunRecord is a finished keep-alive run as stored in the database.
type RunRecord struct {
	ID              int       `storm:"increment" json:"id"`
	Device          string    `storm:"index" json:"device"`
	Status          string    `json:"status"`
	Started         time.Time `json:"started"`
	Ended           time.Time `json:"ended"`
	Retransmissions int       `json:"retransmissions"`
	Error           string    `json:"error,omitempty"`
}

func NewRunRecord(device string, result hardware.RunResult) *RunRecord {
	record := &RunRecord{
		Device:          device,
		Status:          result.Status.String(),
		Started:         result.Started,
		Ended:           result.Ended,
		Retransmissions: result.Retransmissions,
	}
	if result.Err != nil {
		record.Error = result.Err.Error()
	}
	return record
}

// recordRuns returns an observer that saves every finished run.
func recordRuns(db *storm.DB, device string) func(hardware.RunResult) {
	return func(result hardware.RunResult) {
		if err := db.Save(NewRunRecord(device, result)); err != nil {
			logrus.WithError(err).Error("unable to record keep alive run")
		}
	}
}

// History lists the most recent runs, newest first.
func History(w http.ResponseWriter, r *http.Request) {
	limit := HISTORY_LIMIT
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err == nil && n <= 0 {
			err = fmt.Errorf("limit must be positive, got %d", n)
		}
		if err != nil {
			render.Render(w, r, ErrInvalidRequest(err))
			return
		}
		limit = n
	}

	records := make([]RunRecord, 0)
	err := ENV.DB.All(&records, storm.Limit(limit), storm.Reverse())
	if err != nil && err != storm.ErrNotFound {
		render.Render(w, r, ErrRender(err))
		return
	}

	render.JSON(w, r, records)
}
