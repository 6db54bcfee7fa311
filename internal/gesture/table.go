package gesture

import (
	"log/slog"
	"time"

	"github.com/ayusman/gyre/internal/geom"
	"github.com/ayusman/gyre/internal/media"
)

// MediaLoader opens the media attached to a zone. Either handle may be nil.
type MediaLoader func(cfg ZoneConfig) (media.Audio, media.Animation)

// Table owns one Runtime per configured zone. Runtimes live in a dense
// slice; index maps zone IDs to slots. Removal swaps the last slot into the
// freed one.
//
// A Table is not safe for concurrent use; it belongs to the tick goroutine.
type Table struct {
	params Params
	load   MediaLoader
	logger *slog.Logger

	slots []Runtime
	index map[string]int
	order []string
}

// NewTable creates an empty table. load may be nil.
func NewTable(params Params, load MediaLoader, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		params: params,
		load:   load,
		logger: logger.With("component", "gesture.table"),
		index:  make(map[string]int),
	}
}

// Params returns the current tuning.
func (t *Table) Params() Params {
	return t.params
}

// SetParams replaces the tuning. Runtime state is kept.
func (t *Table) SetParams(p Params) {
	t.params = p
}

// Len returns the number of zones.
func (t *Table) Len() int {
	return len(t.slots)
}

// Sync reconciles the table with the current configuration. New IDs get a
// fresh runtime, known IDs pick up the new config, and runtimes whose ID is
// gone are destroyed with their media paused. Media is reopened when a
// zone's media references change.
func (t *Table) Sync(configs []ZoneConfig, now time.Time) {
	seen := make(map[string]bool, len(configs))
	order := make([]string, 0, len(configs))

	for _, cfg := range configs {
		if cfg.ID == "" || seen[cfg.ID] {
			continue
		}
		seen[cfg.ID] = true
		order = append(order, cfg.ID)

		i, ok := t.index[cfg.ID]
		if !ok {
			t.slots = append(t.slots, Runtime{Config: cfg})
			i = len(t.slots) - 1
			t.index[cfg.ID] = i
			t.attach(&t.slots[i])
			t.logger.Debug("zone added", "zone", cfg.ID)
			continue
		}

		r := &t.slots[i]
		old := r.Config
		r.Config = cfg
		if old.AudioRef != cfg.AudioRef || old.ImageRef != cfg.ImageRef || old.Volume != cfg.Volume {
			t.detach(r, now)
			t.attach(r)
			if r.Active {
				if r.Audio != nil {
					r.mediaErr = r.Audio.Resume(0)
				}
				if r.Animation != nil {
					r.Animation.Resume(now)
				}
			}
		}
	}

	for id := range t.index {
		if !seen[id] {
			t.remove(id, now)
		}
	}
	t.order = order
}

func (t *Table) attach(r *Runtime) {
	if t.load == nil {
		return
	}
	r.Audio, r.Animation = t.load(r.Config)
	r.resumeAt = 0
}

func (t *Table) detach(r *Runtime, now time.Time) {
	pauseMedia(r, now)
	if r.Audio != nil {
		if err := r.Audio.Close(); err != nil {
			t.logger.Debug("close audio", "zone", r.Config.ID, "error", err)
		}
	}
	r.Audio = nil
	r.Animation = nil
}

func (t *Table) remove(id string, now time.Time) {
	i, ok := t.index[id]
	if !ok {
		return
	}
	t.detach(&t.slots[i], now)

	last := len(t.slots) - 1
	if i != last {
		t.slots[i] = t.slots[last]
		t.index[t.slots[i].Config.ID] = i
	}
	t.slots[last] = Runtime{}
	t.slots = t.slots[:last]
	delete(t.index, id)

	t.logger.Debug("zone removed", "zone", id)
}

// Step advances every zone by one tick and returns the activation edges.
func (t *Table) Step(pointer *geom.Point, now time.Time) []Event {
	var events []Event
	for i := range t.slots {
		r := &t.slots[i]
		if ev, ok := Step(r, pointer, now, t.params); ok {
			events = append(events, ev)
			t.logger.Info("zone "+string(ev.Kind), "zone", ev.ZoneID)
		}
		if r.mediaErr != nil {
			t.logger.Warn("resume audio failed", "zone", r.Config.ID, "error", r.mediaErr)
			r.mediaErr = nil
		}
	}
	return events
}

// Get returns a view of one zone.
func (t *Table) Get(id string) (View, bool) {
	i, ok := t.index[id]
	if !ok {
		return View{}, false
	}
	return t.view(&t.slots[i]), true
}

// Runtime returns the live runtime for id. The pointer is invalidated by
// the next Sync.
func (t *Table) Runtime(id string) *Runtime {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	return &t.slots[i]
}

// Views returns copies of every zone in configuration order.
func (t *Table) Views() []View {
	views := make([]View, 0, len(t.order))
	for _, id := range t.order {
		if i, ok := t.index[id]; ok {
			views = append(views, t.view(&t.slots[i]))
		}
	}
	return views
}

// ActiveCount returns how many zones are active.
func (t *Table) ActiveCount() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].Active {
			n++
		}
	}
	return n
}

// Close pauses all media and empties the table.
func (t *Table) Close(now time.Time) {
	for i := range t.slots {
		t.detach(&t.slots[i], now)
	}
	t.slots = nil
	t.order = nil
	t.index = make(map[string]int)
}

func (t *Table) view(r *Runtime) View {
	return View{
		Config:     r.Config,
		Inside:     r.Inside,
		Active:     r.Active,
		Accum:      r.Accum,
		Progress:   r.Progress(t.params.ActivationDeg),
		Spin:       r.Spin,
		Grace:      r.Grace,
		DepthBlock: r.DepthBlock,
		Animation:  r.Animation,
	}
}
