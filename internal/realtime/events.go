// Package realtime fans paint, decay, wave, and presence deltas out to every
// connected viewer over one shared channel. Delivery is best effort: slow
// subscribers miss events and recover on their next full snapshot, and every
// event is self-contained so applying it twice is harmless.
package realtime

import "github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"

// Event type tags carried in the wire "type" field.
const (
	EventTypePaint        = "paint"
	EventTypeDecay        = "decay"
	EventTypeWaveIncoming = "waveIncoming"
	EventTypePresence     = "presenceUpdate"
)

// Event is any broadcastable delta.
type Event interface {
	Kind() string
}

// PaintEvent announces a single repainted cell.
type PaintEvent struct {
	Type string       `json:"type"`
	X    int          `json:"x"`
	Y    int          `json:"y"`
	Data canvas.Pixel `json:"data"`
}

// NewPaintEvent builds a paint delta.
func NewPaintEvent(x, y int, pixel canvas.Pixel) PaintEvent {
	return PaintEvent{Type: EventTypePaint, X: x, Y: y, Data: pixel}
}

// Kind implements Event.
func (e PaintEvent) Kind() string { return e.Type }

// DecayPixel is one corrupted cell inside a decay delta.
type DecayPixel struct {
	Coord string       `json:"coord"`
	Data  canvas.Pixel `json:"data"`
}

// DecayEvent lists every distinct cell a decay pass touched.
type DecayEvent struct {
	Type   string       `json:"type"`
	Pixels []DecayPixel `json:"pixels"`
	IsWave bool         `json:"isWave"`
}

// NewDecayEvent builds a decay delta.
func NewDecayEvent(pixels []DecayPixel, isWave bool) DecayEvent {
	return DecayEvent{Type: EventTypeDecay, Pixels: pixels, IsWave: isWave}
}

// Kind implements Event.
func (e DecayEvent) Kind() string { return e.Type }

// WaveIncomingEvent warns that the next decay tick will be a wave.
type WaveIncomingEvent struct {
	Type         string  `json:"type"`
	StartsAt     int64   `json:"startsAt"`
	EtaMs        int64   `json:"etaMs"`
	IntensityPct float64 `json:"intensityPct"`
}

// NewWaveIncomingEvent builds a wave notice.
func NewWaveIncomingEvent(startsAtMillis, etaMillis int64, intensity float64) WaveIncomingEvent {
	return WaveIncomingEvent{
		Type:         EventTypeWaveIncoming,
		StartsAt:     startsAtMillis,
		EtaMs:        etaMillis,
		IntensityPct: intensity,
	}
}

// Kind implements Event.
func (e WaveIncomingEvent) Kind() string { return e.Type }

// PresenceEvent carries the refreshed active-user list.
type PresenceEvent struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// NewPresenceEvent builds a presence delta.
func NewPresenceEvent(users []string) PresenceEvent {
	return PresenceEvent{Type: EventTypePresence, Users: users}
}

// Kind implements Event.
func (e PresenceEvent) Kind() string { return e.Type }
