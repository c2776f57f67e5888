package worker

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/cuemby/jobflow/pkg/jobstore"
)

// statsRecord is the XML shape the stats file uses: a "worker" element with
// time/clock/memory attributes and a messages child holding one message
// element per user log line.
type statsRecord struct {
	XMLName  xml.Name      `xml:"worker"`
	Time     float64       `xml:"time,attr"`
	Clock    float64       `xml:"clock,attr"`
	Memory   int64         `xml:"memory,attr"`
	Messages statsMessages `xml:"messages"`
}

type statsMessages struct {
	Message []string `xml:"message"`
}

// flushStats implements normal-exit stats write: a full
// record when stats are enabled, or just the messages if any exist and
// stats are not enabled, or nothing at all.
func flushStats(ctx context.Context, sink jobstore.StatsSink, statsEnabled bool, wallTime, cpuTime float64, peakMemory int64, messages []string) error {
	var record *statsRecord
	switch {
	case statsEnabled:
		record = &statsRecord{Time: wallTime, Clock: cpuTime, Memory: peakMemory}
		record.Messages.Message = messages
	case len(messages) > 0:
		record = &statsRecord{}
		record.Messages.Message = messages
	default:
		return nil
	}

	blob, err := xml.Marshal(record)
	if err != nil {
		return fmt.Errorf("worker: marshal stats record: %w", err)
	}
	if err := sink.WriteStatsAndLogging(ctx, blob); err != nil {
		return fmt.Errorf("worker: write stats: %w", err)
	}
	return nil
}
