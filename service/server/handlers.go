package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/brojonat/soldrop/service/airdrop"
	"github.com/brojonat/soldrop/service/recipients"
)

// runResponse is the run snapshot plus per-state row counts.
type runResponse struct {
	airdrop.Snapshot
	Counts map[string]int `json:"counts"`
}

func countStates(rows []recipients.Row) map[string]int {
	counts := map[string]int{
		recipients.Idle{}.Name():       0,
		recipients.InProgress{}.Name(): 0,
		recipients.Succeeded{}.Name():  0,
		recipients.Failed{}.Name():     0,
		recipients.Skipped{}.Name():    0,
	}
	for _, r := range rows {
		counts[r.State.Name()]++
	}
	return counts
}

// handleGetRun returns the current phase, plan, rows and report.
// GET /api/v1/run
func handleGetRun(source RunSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := source.Snapshot()
		logger.DebugContext(r.Context(), "serving run snapshot",
			"run_id", snap.RunID,
			"phase", snap.Phase.String(),
			"rows", len(snap.Rows),
		)
		writeJSON(w, runResponse{Snapshot: snap, Counts: countStates(snap.Rows)}, http.StatusOK)
	})
}

// handleGetRow returns a single row by id.
// GET /api/v1/run/rows/{id}
func handleGetRow(source RunSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			logger.DebugContext(r.Context(), "invalid row id", "id", r.PathValue("id"), "error", err)
			writeError(w, "invalid row id", http.StatusBadRequest)
			return
		}

		for _, row := range source.Snapshot().Rows {
			if row.ID == id {
				writeJSON(w, row, http.StatusOK)
				return
			}
		}
		writeError(w, "row not found", http.StatusNotFound)
	})
}

// handleGetReport returns the report of the last finished run.
// GET /api/v1/run/report
func handleGetReport(source RunSource, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := source.Snapshot()
		if snap.Report == nil {
			writeError(w, "no report available", http.StatusNotFound)
			return
		}
		writeJSON(w, snap.Report, http.StatusOK)
	})
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
