// Package decay runs the corruption state machine. There is no background
// timer: every inbound request asks the engine whether a tick is due, and the
// request that observes due-ness claims the tick with a compare-and-swap on
// the schedule key, so concurrent observers cannot run the same tick twice.
package decay

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/realtime"
	"go.uber.org/zap"
)

// Decay tuning. A normal tick corrupts about 2% of the grid; every fifth
// tick escalates into a wave at 6%.
const (
	DefaultInterval = time.Minute
	FractionNormal  = 0.02
	FractionWave    = 0.06
	WaveEvery       = 5

	// WaveWarningLeadTime is how far ahead of a wave clients should start
	// their countdown; the incoming-wave event carries the exact etaMs.
	WaveWarningLeadTime = 30 * time.Second

	maxClusterSize = 5
)

// Schedule state keys, one scalar each.
const (
	nextGlitchTimeKey = "nextGlitchTime"
	glitchCounterKey  = "glitchCounter"
	waveStartsAtKey   = "waveStartsAt"
	waveIntensityKey  = "waveIntensityPct"
)

// Broadcaster receives the engine's decay and wave events.
type Broadcaster interface {
	Publish(event realtime.Event)
}

// Config describes the dependencies required by the engine.
type Config struct {
	KV          *kvstore.Store
	Canvas      *canvas.Store
	Broadcaster Broadcaster
	Logger      *zap.Logger
	Interval    time.Duration
	Clock       func() time.Time
	Rand        *rand.Rand
}

// Engine owns the decay schedule and executes due passes.
type Engine struct {
	kv        *kvstore.Store
	canvas    *canvas.Store
	broadcast Broadcaster
	logger    *zap.Logger
	interval  time.Duration
	clock     func() time.Time
	rng       *rand.Rand
}

// WaveForecast describes whether the next tick is a wave.
type WaveForecast struct {
	Next         bool
	StartsAt     time.Time
	IntensityPct float64
}

// NewEngine constructs an engine with sane defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.KV == nil {
		return nil, fmt.Errorf("decay: key-value store required")
	}
	if cfg.Canvas == nil {
		return nil, fmt.Errorf("decay: canvas store required")
	}
	if cfg.Broadcaster == nil {
		return nil, fmt.Errorf("decay: broadcaster required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{
		kv:        cfg.KV,
		canvas:    cfg.Canvas,
		broadcast: cfg.Broadcaster,
		logger:    logger,
		interval:  interval,
		clock:     clock,
		rng:       rng,
	}, nil
}

// NextGlitchTime returns the due time of the next decay tick, initializing
// the schedule on first read.
func (e *Engine) NextGlitchTime(ctx context.Context) (time.Time, error) {
	raw, ok, err := e.kv.Get(ctx, nextGlitchTimeKey)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		next := e.clock().Add(e.interval)
		if err := e.kv.Set(ctx, nextGlitchTimeKey, formatMillis(next)); err != nil {
			return time.Time{}, err
		}
		return next, nil
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decay: corrupt schedule value %q", raw)
	}
	return time.UnixMilli(millis), nil
}

// CheckAndRun executes one decay pass if a tick is due. Among concurrent
// callers that all observe due-ness, only the one whose swap of the schedule
// key succeeds runs the pass; the rest return without mutating anything.
func (e *Engine) CheckAndRun(ctx context.Context) error {
	raw, ok, err := e.kv.Get(ctx, nextGlitchTimeKey)
	if err != nil {
		return err
	}
	now := e.clock()
	if !ok {
		// First request ever: seed the schedule, nothing due yet.
		return e.kv.Set(ctx, nextGlitchTimeKey, formatMillis(now.Add(e.interval)))
	}
	dueMillis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("decay: corrupt schedule value %q", raw)
	}
	if now.UnixMilli() < dueMillis {
		return nil
	}

	nextDue := now.Add(e.interval)
	won, err := e.kv.CompareAndSwap(ctx, nextGlitchTimeKey, raw, formatMillis(nextDue))
	if err != nil {
		return err
	}
	if !won {
		return nil
	}
	return e.runPass(ctx, nextDue)
}

func (e *Engine) runPass(ctx context.Context, nextDue time.Time) error {
	counter, err := e.advanceCounter(ctx)
	if err != nil {
		return err
	}
	isWave := counter%WaveEvery == 0
	fraction := FractionNormal
	if isWave {
		fraction = FractionWave
	}

	batch := e.sampleClusters(fraction)
	if err := e.canvas.SetMany(ctx, batch); err != nil {
		return err
	}

	// Integrity is a cached derived value; a failed recompute never undoes
	// the pass.
	if _, err := e.canvas.RecalcIntegrity(ctx); err != nil {
		e.logger.Warn("integrity recompute failed after decay", zap.Error(err))
	}

	pixels := make([]realtime.DecayPixel, 0, len(batch))
	for coord, pixel := range batch {
		pixels = append(pixels, realtime.DecayPixel{Coord: coord, Data: pixel})
	}
	e.broadcast.Publish(realtime.NewDecayEvent(pixels, isWave))

	if err := e.announceForecast(ctx, counter, nextDue); err != nil {
		return err
	}

	e.logger.Info("decay pass complete",
		zap.Int64("glitchCounter", counter),
		zap.Bool("isWave", isWave),
		zap.Int("pixelsAffected", len(batch)))
	return nil
}

// advanceCounter bumps the persistent tick counter and returns the new value.
func (e *Engine) advanceCounter(ctx context.Context) (int64, error) {
	raw, ok, err := e.kv.Get(ctx, glitchCounterKey)
	if err != nil {
		return 0, err
	}
	var counter int64
	if ok {
		counter, _ = strconv.ParseInt(raw, 10, 64)
	}
	counter++
	if err := e.kv.Set(ctx, glitchCounterKey, strconv.FormatInt(counter, 10)); err != nil {
		return 0, err
	}
	return counter, nil
}

// sampleClusters picks random rectangular clusters until the distinct count
// of corrupted cells reaches floor(W*H*fraction). The final cluster may
// overshoot the target by at most its own extent; duplicate coordinates
// across clusters count once.
func (e *Engine) sampleClusters(fraction float64) map[string]canvas.Pixel {
	target := int(float64(canvas.Width*canvas.Height) * fraction)
	glitch := canvas.GlitchPixel()
	batch := make(map[string]canvas.Pixel, target)
	for len(batch) < target {
		anchorX := e.rng.Intn(canvas.Width)
		anchorY := e.rng.Intn(canvas.Height)
		clusterW := 1 + e.rng.Intn(maxClusterSize)
		clusterH := 1 + e.rng.Intn(maxClusterSize)
		for x := anchorX; x < anchorX+clusterW && x < canvas.Width; x++ {
			for y := anchorY; y < anchorY+clusterH && y < canvas.Height; y++ {
				if len(batch) >= target {
					break
				}
				batch[canvas.FormatCoord(x, y)] = glitch
			}
		}
	}
	return batch
}

// announceForecast persists and broadcasts the wave look-ahead: when the
// following tick lands on the wave cadence, viewers get an advance notice.
func (e *Engine) announceForecast(ctx context.Context, counter int64, nextDue time.Time) error {
	if (counter+1)%WaveEvery == 0 {
		if err := e.kv.Set(ctx, waveStartsAtKey, formatMillis(nextDue)); err != nil {
			return err
		}
		if err := e.kv.Set(ctx, waveIntensityKey, strconv.FormatFloat(FractionWave, 'g', -1, 64)); err != nil {
			return err
		}
		eta := nextDue.Sub(e.clock()).Milliseconds()
		e.broadcast.Publish(realtime.NewWaveIncomingEvent(nextDue.UnixMilli(), eta, FractionWave))
		return nil
	}
	if err := e.kv.Set(ctx, waveStartsAtKey, "0"); err != nil {
		return err
	}
	return e.kv.Set(ctx, waveIntensityKey, "0")
}

// WaveForecast reports whether the upcoming tick is a wave, for status reads.
func (e *Engine) WaveForecast(ctx context.Context) (WaveForecast, error) {
	rawStarts, _, err := e.kv.Get(ctx, waveStartsAtKey)
	if err != nil {
		return WaveForecast{}, err
	}
	rawIntensity, _, err := e.kv.Get(ctx, waveIntensityKey)
	if err != nil {
		return WaveForecast{}, err
	}
	startsMillis, _ := strconv.ParseInt(rawStarts, 10, 64)
	intensity, _ := strconv.ParseFloat(rawIntensity, 64)
	if startsMillis <= e.clock().UnixMilli() || intensity <= 0 {
		return WaveForecast{}, nil
	}
	return WaveForecast{
		Next:         true,
		StartsAt:     time.UnixMilli(startsMillis),
		IntensityPct: intensity,
	}, nil
}

func formatMillis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
