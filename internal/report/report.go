// Package report renders flight summaries as JSON and PDF documents.
package report

import (
	"encoding/json"
	"os"
	"time"

	"example.com/edmgate/internal/analysis"
)

// FlightReport is a flight summary plus the provenance of the file it came
// from.
type FlightReport struct {
	Source    string           `json:"source"`
	Digest    string           `json:"sha256"`
	Generated time.Time        `json:"generated"`
	Summary   analysis.Summary `json:"summary"`
}

func SaveSummaryJSON(rep FlightReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadSummaryJSON(path string) (FlightReport, error) {
	var rep FlightReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}
