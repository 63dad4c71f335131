package testers

import "time"

// maxJitter is the largest jitter reading (ms) treated as real. iperf3
// occasionally reports nonsense values on very short runs.
const maxJitter = 2000.0

// MOS estimates a voice Mean Opinion Score from round-trip time, jitter
// (both in milliseconds) and loss percentage using the simplified E-model.
func MOS(rttMS, jitterMS, lossPercent float64) float64 {
	if jitterMS > maxJitter {
		jitterMS = 0
	}
	effective := rttMS/2 + 2*jitterMS + 10

	var r float64
	if effective < 160 {
		r = 93.2 - effective/40
	} else {
		r = 93.2 - (effective-120)/10
	}
	r -= 2.5 * lossPercent

	switch {
	case r < 0:
		return 1
	case r < 100:
		return round2(1 + 0.035*r + 0.000007*r*(r-60)*(100-r))
	default:
		return 4.5
	}
}

// MOSFromDuration is MOS with the round-trip time given as a duration.
func MOSFromDuration(rtt time.Duration, jitterMS, lossPercent float64) float64 {
	return MOS(float64(rtt)/float64(time.Millisecond), jitterMS, lossPercent)
}
