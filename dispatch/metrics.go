package dispatch

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// processMemoryMB reports the current process resident set in
// megabytes, zero when the platform cannot provide it. The value is
// informational only; dispatch never throttles on it.
func processMemoryMB() float64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	info, err := p.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / 1024 / 1024
}
