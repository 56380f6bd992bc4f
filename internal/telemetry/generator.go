package telemetry

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"modelardb-sim/internal/registry"
)

// Windmills is the number of turbines each table's rows rotate through.
const Windmills = 10

// Generator simulates wind turbine sensors. Every (table, windmill) pair is an
// independent series whose fields follow a random walk, so consecutive values
// stay close and compress the way real sensor data does.
type Generator struct {
	mu     sync.Mutex
	rand   *rand.Rand
	now    func() time.Time
	series map[string][]float64
	next   map[string]int
}

// NewGenerator creates a generator. A nil rand seeds from the clock; a nil now
// uses time.Now.
func NewGenerator(r *rand.Rand, now func() time.Time) *Generator {
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if now == nil {
		now = time.Now
	}
	return &Generator{rand: r, now: now, series: map[string][]float64{}, next: map[string]int{}}
}

// Batch generates rows for a table. The batch size is rows × BytesPerRow
// regardless of the values produced.
func (g *Generator) Batch(t registry.Table, rows int) Batch {
	g.mu.Lock()
	defer g.mu.Unlock()

	b := Batch{Table: t.Name, Rows: make([]Row, 0, rows), Size: uint64(rows) * t.BytesPerRow()}
	ts := g.now().UTC()
	for i := 0; i < rows; i++ {
		mill := g.next[t.Name]
		g.next[t.Name] = (mill + 1) % Windmills
		b.Rows = append(b.Rows, Row{
			Timestamp: ts.Add(time.Duration(i) * time.Microsecond),
			Tags:      g.tags(t, mill),
			Fields:    g.step(t, mill),
		})
	}
	return b
}

func (g *Generator) tags(t registry.Table, mill int) []string {
	tags := make([]string, len(t.Tags))
	for i, name := range t.Tags {
		switch name {
		case "park_id":
			tags[i] = "park-1"
		case "windmill_id":
			tags[i] = fmt.Sprintf("windmill-%d", mill+1)
		default:
			tags[i] = fmt.Sprintf("%s-%d", name, mill+1)
		}
	}
	return tags
}

// step advances one series and returns its new field values.
func (g *Generator) step(t registry.Table, mill int) []float32 {
	key := fmt.Sprintf("%s/%d", t.Name, mill)
	vals, ok := g.series[key]
	if !ok {
		vals = make([]float64, len(t.Fields))
		for i, name := range t.Fields {
			vals[i] = initialValue(name, g.rand)
		}
		g.series[key] = vals
	}
	out := make([]float32, len(vals))
	for i, v := range vals {
		// Relative step of about 0.5% keeps the walk smooth.
		v += g.rand.NormFloat64() * 0.005 * math.Max(math.Abs(v), 1)
		vals[i] = v
		out[i] = float32(v)
	}
	return out
}

// initialValue returns a plausible starting point for a wind turbine field.
func initialValue(field string, r *rand.Rand) float64 {
	switch field {
	case "wind_speed":
		return 5 + r.Float64()*10
	case "pitch_angle":
		return r.Float64() * 30
	case "rotor_speed":
		return 8 + r.Float64()*8
	case "active_power":
		return 500 + r.Float64()*1500
	case "generator_speed":
		return 1000 + r.Float64()*500
	case "ambient_temperature":
		return 5 + r.Float64()*15
	default:
		return r.Float64()*2 - 1
	}
}
