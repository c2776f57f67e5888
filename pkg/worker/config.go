package worker

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"

	"github.com/cuemby/jobflow/pkg/jobstore"
)

const configSharedFileName = "config.xml"

// Config is the worker-visible slice of the configuration blob: an XML
// element stored as the shared file config.xml. Parsed with the standard
// library's encoding/xml since the wire format is specified
// as XML by the interface itself, not a choice this package makes.
type Config struct {
	XMLName       xml.Name `xml:"config"`
	TryCount      int      `xml:"try_count,attr"`
	JobTimeSecs   float64  `xml:"job_time,attr"`
	DefaultMemory int64    `xml:"default_memory,attr"`
	DefaultCPU    int64    `xml:"default_cpu,attr"`
	LogLevel      string   `xml:"log_level,attr"`
	StatsAttr     *string  `xml:"stats,attr"`
}

// StatsEnabled reports whether the stats attribute is present, which
// toggles the write at worker exit.
func (c *Config) StatsEnabled() bool {
	return c.StatsAttr != nil
}

// LoadConfig reads and parses config.xml from the shared file namespace.
func LoadConfig(ctx context.Context, store jobstore.SharedFileStore) (*Config, error) {
	r, err := store.ReadSharedFileStream(ctx, configSharedFileName)
	if err != nil {
		return nil, fmt.Errorf("worker: read config: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("worker: read config: %w", err)
	}

	var cfg Config
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("worker: parse config: %w", err)
	}
	return &cfg, nil
}
