package ingest

import (
	"time"

	"github.com/jittakal/datalogger/pkg/reading"
)

// SummaryTimeFormat is the layout of the summary timestamp.
const SummaryTimeFormat = "2006-01-02 15:04:05"

// Summarize computes the per-request summary for p at time now. Stats are
// set only when the record's data holds at least one numeric value.
func Summarize(p reading.Payload, now time.Time) reading.Summary {
	md := p.Metadata()
	summary := reading.Summary{
		Timestamp:       now.Format(SummaryTimeFormat),
		DataCount:       1,
		SlaveID:         md.SlaveID,
		TargetAddresses: md.TargetAddresses,
	}

	if v, ok := p.Field(reading.FieldData); ok {
		summary.Stats = computeStats(v)
	}
	return summary
}

func computeStats(data any) *reading.Stats {
	entries, ok := data.([]any)
	if !ok {
		return nil
	}

	var stats reading.Stats
	var sum float64
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		value, ok := reading.ToFloat(obj["value"])
		if !ok {
			continue
		}
		if stats.Count == 0 || value < stats.Min {
			stats.Min = value
		}
		if stats.Count == 0 || value > stats.Max {
			stats.Max = value
		}
		sum += value
		stats.Count++
	}

	if stats.Count == 0 {
		return nil
	}
	stats.Avg = sum / float64(stats.Count)
	return &stats
}
