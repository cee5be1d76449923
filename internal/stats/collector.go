package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks archive operation statistics using lock-free atomic
// counters. The same collector serves both directions: during a combine
// "written" means records packed into the archive, during a split it
// means files restored to disk.
type Collector struct {
	filesScanned  atomic.Int64
	filesWritten  atomic.Int64
	filesFailed   atomic.Int64
	filesSkipped  atomic.Int64
	bytesWritten  atomic.Int64
	dirsCreated   atomic.Int64
	bytesTotal    atomic.Int64
	filesTotal    atomic.Int64
	filesVerified atomic.Int64
	verifyFailed  atomic.Int64
	startTime     time.Time

	// Ring buffer, written only by the presenter's Tick().
	mu          sync.Mutex
	throughput  [ringSize]int64 // bytes delta per second
	filesPerSec [ringSize]int64 // files delta per second
	ringIdx     int
	ringCount   int // how many samples have been written (capped at ringSize)
	lastBytes   int64
	lastFiles   int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records scan totals (called once when the scan or the
// archive header read completes).
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned  int64
	FilesWritten  int64
	FilesFailed   int64
	FilesSkipped  int64
	BytesWritten  int64
	DirsCreated   int64
	BytesTotal    int64
	FilesTotal    int64
	FilesVerified int64
	VerifyFailed  int64
	Elapsed       time.Duration
}

func (c *Collector) AddFilesScanned(n int64)  { c.filesScanned.Add(n) }
func (c *Collector) AddFilesWritten(n int64)  { c.filesWritten.Add(n) }
func (c *Collector) AddFilesFailed(n int64)   { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)  { c.filesSkipped.Add(n) }
func (c *Collector) AddBytesWritten(n int64)  { c.bytesWritten.Add(n) }
func (c *Collector) AddDirsCreated(n int64)   { c.dirsCreated.Add(n) }
func (c *Collector) AddFilesVerified(n int64) { c.filesVerified.Add(n) }
func (c *Collector) AddVerifyFailed(n int64)  { c.verifyFailed.Add(n) }

// Snapshot returns a consistent point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:  c.filesScanned.Load(),
		FilesWritten:  c.filesWritten.Load(),
		FilesFailed:   c.filesFailed.Load(),
		FilesSkipped:  c.filesSkipped.Load(),
		BytesWritten:  c.bytesWritten.Load(),
		DirsCreated:   c.dirsCreated.Load(),
		BytesTotal:    c.bytesTotal.Load(),
		FilesTotal:    c.filesTotal.Load(),
		FilesVerified: c.filesVerified.Load(),
		VerifyFailed:  c.verifyFailed.Load(),
		Elapsed:       c.Elapsed(),
	}
}

// Tick snapshots byte/file deltas into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	currentBytes := c.bytesWritten.Load()
	currentFiles := c.filesWritten.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	bytesDelta := currentBytes - c.lastBytes
	filesDelta := currentFiles - c.lastFiles
	c.lastBytes = currentBytes
	c.lastFiles = currentFiles

	c.throughput[c.ringIdx] = bytesDelta
	c.filesPerSec[c.ringIdx] = filesDelta
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.throughput[:], seconds)
}

// RollingFilesPerSec returns average files/sec over the last n seconds.
func (c *Collector) RollingFilesPerSec(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.filesPerSec[:], seconds)
}

func (c *Collector) rollingAvg(buf []int64, n int) float64 {
	count := n
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n bytes/sec samples for rendering.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := n
	if count > c.ringCount {
		count = c.ringCount
	}
	if count == 0 {
		return nil
	}

	data := make([]float64, count)
	for i := range count {
		// oldest first
		idx := (c.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(c.throughput[idx])
	}
	return data
}

// ETA estimates remaining time based on rolling speed and remaining bytes.
func (c *Collector) ETA() time.Duration {
	speed := c.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := c.bytesTotal.Load() - c.bytesWritten.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"scanned=%d written=%d failed=%d skipped=%d bytes=%d dirs=%d",
		s.FilesScanned, s.FilesWritten, s.FilesFailed, s.FilesSkipped,
		s.BytesWritten, s.DirsCreated,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
