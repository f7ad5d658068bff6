package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling counter.
var Stats = &stats{}

type stats struct {
	FramesSent       atomic.Int64 // WebSocket frames written since process start
	FramesRecv       atomic.Int64 // WebSocket frames read since process start
	LocalCandidates  atomic.Int64 // ICE candidates gathered locally
	RemoteCandidates atomic.Int64 // ICE candidates applied from the peer
	PacketsRecv      atomic.Int64 // RTP packets read from remote tracks
}

func (s *stats) AddSent()            { s.FramesSent.Add(1) }
func (s *stats) AddRecv()            { s.FramesRecv.Add(1) }
func (s *stats) AddLocalCandidate()  { s.LocalCandidates.Add(1) }
func (s *stats) AddRemoteCandidate() { s.RemoteCandidates.Add(1) }
func (s *stats) AddPacket()          { s.PacketsRecv.Add(1) }

// snapshot is a point-in-time copy of the counters.
type snapshot struct {
	sent, recv, local, remote, packets int64
}

func (s *stats) snapshot() snapshot {
	return snapshot{
		sent:    s.FramesSent.Load(),
		recv:    s.FramesRecv.Load(),
		local:   s.LocalCandidates.Load(),
		remote:  s.RemoteCandidates.Load(),
		packets: s.PacketsRecv.Load(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval. Intervals that saw no traffic are skipped. It stops when
// ctx is cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		prev := Stats.snapshot()
		for {
			select {
			case <-ticker.C:
				cur := Stats.snapshot()
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(prev, cur))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns the per-interval deltas for display in the logger,
// for example: "Frames:  3↑  5↓ | ICE:  2 local  4 remote | RTP: 120↓".
func formatStats(prev, cur snapshot) string {
	return fmt.Sprintf("Frames: %2d↑ %2d↓ | ICE: %2d local %2d remote | RTP: %d↓",
		cur.sent-prev.sent,
		cur.recv-prev.recv,
		cur.local-prev.local,
		cur.remote-prev.remote,
		cur.packets-prev.packets,
	)
}
