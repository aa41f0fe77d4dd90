package datalog

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const csvHeader = "timestamp_iso,time_s,cmd_raw,cmd_limited,feedback,error,errorI,output,at_speed"

// ExportCSV writes the recorded session to path. An empty recording writes
// nothing and returns false; I/O failures are logged and return false.
func (l *Logger) ExportCSV(path string, metadata map[string]string) bool {
	points := l.points()
	if len(points) == 0 {
		l.log.Warn("nothing recorded, not exporting", "path", path)
		return false
	}

	var b strings.Builder
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "# %s: %s\n", k, metadata[k])
	}
	b.WriteString(csvHeader + "\n")

	for _, p := range points {
		atSpeed := 0
		if p.AtSpeed {
			atSpeed = 1
		}
		fmt.Fprintf(&b, "%s,%.4f,%.2f,%.2f,%.2f,%.3f,%.3f,%.3f,%d\n",
			p.Wall.Format(time.RFC3339Nano), p.Time,
			p.CmdRaw, p.CmdLimited, p.Feedback,
			p.Error, p.ErrorI, p.Output, atSpeed)
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		l.log.Error("export failed", "path", path, "err", err)
		return false
	}
	l.log.Info("exported recording", "path", path, "points", len(points))
	return true
}
