package logic

// InstrumentedChannel is the only output with a current sensor wired.
const InstrumentedChannel = 0

// Connectivity evaluates per-channel connection flags from the running flag
// and the latest measured frequencies. Channel 0 is connected unless the pump
// is running and its frequency is below ConnectedFloorHz. Every other channel
// is reported disconnected because it has no current sensor.
func Connectivity(running bool, freqs []float64) []bool {
	out := make([]bool, len(freqs))
	if len(freqs) == 0 {
		return out
	}
	out[InstrumentedChannel] = !(running && freqs[InstrumentedChannel] < ConnectedFloorHz)
	return out
}

// Transition describes a change in one channel's connection flag.
type Transition struct {
	Channel   int
	Connected bool
}

// ConnectivityChanges returns the channels whose flag differs between prev
// and cur. Channels missing from prev are not reported.
func ConnectivityChanges(prev, cur []bool) []Transition {
	var out []Transition
	for i, c := range cur {
		if i >= len(prev) {
			break
		}
		if prev[i] != c {
			out = append(out, Transition{Channel: i, Connected: c})
		}
	}
	return out
}
