package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// persistDebounce coalesces cue-file writes triggered by refresh bursts.
const persistDebounce = 1 * time.Second

// Store holds the current show's annotated cue model in memory and owns its
// files on disk. All methods are safe for concurrent use. Disk write
// failures in the debounced Persist and in MutateTimings are logged;
// PersistNow returns them to its caller. The in-memory state stays
// authoritative either way.
type Store struct {
	mu       sync.Mutex
	dataDir  string
	showName string

	cues      []*Cue
	showNotes string
	scenes    map[string]SceneMeta
	tagColors map[string]string
	timings   ShowTimings

	debounced func(func())
}

// Open runs the startup migrations and loads showName (creating it empty if
// it does not exist yet).
func Open(dataDir, showName string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := MigrateLayout(dataDir); err != nil {
		return nil, err
	}

	s := &Store{
		dataDir:   dataDir,
		debounced: debounce.New(persistDebounce),
	}
	if showName == "" {
		showName = DefaultShowName
	}
	if err := s.loadShow(showName); err != nil {
		return nil, err
	}
	return s, nil
}

// loadShow swaps the in-memory model for the named show's files.
// Caller must not hold mu.
func (s *Store) loadShow(name string) error {
	dir := ShowDir(s.dataDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create show dir: %w", err)
	}

	var cues []*Cue
	readJSON(filepath.Join(dir, cuesFile), &cues)
	for _, c := range cues {
		if c.Color == "" {
			c.Color = DefaultColor
		}
		if c.Tags == nil {
			c.Tags = []string{}
		}
	}
	sort.SliceStable(cues, func(i, j int) bool { return Compare(cues[i], cues[j]) < 0 })

	var notes showNotesDoc
	readJSON(filepath.Join(dir, showNotesFile), &notes)

	scenes := make(map[string]SceneMeta)
	readJSON(filepath.Join(dir, sceneFile), &scenes)

	tagColors := make(map[string]string)
	readJSON(filepath.Join(dir, tagColorsFile), &tagColors)

	var timings ShowTimings
	readJSON(filepath.Join(dir, timingsFile), &timings)

	s.mu.Lock()
	s.showName = name
	s.cues = cues
	s.showNotes = notes.Notes
	s.scenes = scenes
	s.tagColors = tagColors
	s.timings = timings
	s.mu.Unlock()
	return nil
}

// ShowName returns the current show's name.
func (s *Store) ShowName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showName
}

// SwitchShow persists the current show and loads (or creates) another one.
func (s *Store) SwitchShow(name string) error {
	if err := s.PersistNow(); err != nil {
		log.Printf("[store] persist before show switch: %v", err)
	}
	return s.loadShow(name)
}

// ListShows returns all show names in the data directory.
func (s *Store) ListShows() ([]string, error) {
	return ListShows(s.dataDir)
}

// DataDir returns the root data directory.
func (s *Store) DataDir() string {
	return s.dataDir
}

// ---------------------------------------------------------------------------
// Cues
// ---------------------------------------------------------------------------

// Cues returns a snapshot copy of every cue, in sorted order.
func (s *Store) Cues() []Cue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Cue, 0, len(s.cues))
	for _, c := range s.cues {
		out = append(out, copyCue(c))
	}
	return out
}

// Get returns a copy of the cue at key.
func (s *Store) Get(k Key) (Cue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.find(k); c != nil {
		return copyCue(c), true
	}
	return Cue{}, false
}

func (s *Store) find(k Key) *Cue {
	for _, c := range s.cues {
		if c.List == k.List && c.Part == k.Part && c.Number == k.Number {
			return c
		}
	}
	return nil
}

func copyCue(c *Cue) Cue {
	out := *c
	out.Tags = append([]string{}, c.Tags...)
	return out
}

// Upsert applies a console-sourced update to the cue at key, creating it
// with default user fields first when absent. A part record arriving before
// its parent also creates a synthetic part-0 stub so parts always hang off a
// parent row. The collection is re-sorted afterwards.
func (s *Store) Upsert(k Key, u CueUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.find(k)
	if c == nil {
		c = NewCue(k)
		s.cues = append(s.cues, c)
		if k.Part > 0 {
			parent := Key{List: k.List, Number: k.Number, Part: 0}
			if s.find(parent) == nil {
				s.cues = append(s.cues, NewCue(parent))
			}
		}
	}
	u.apply(c)
	s.sortLocked()
}

func (s *Store) sortLocked() {
	sort.SliceStable(s.cues, func(i, j int) bool { return Compare(s.cues[i], s.cues[j]) < 0 })
}

// Evict removes every cue in list whose cue number is not in kept. Cues in
// other lists are untouched. Returns the number of cues removed.
func (s *Store) Evict(list int, kept map[string]bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.cues[:0]
	removed := 0
	for _, c := range s.cues {
		if c.List == list && !kept[c.Number] {
			removed++
			continue
		}
		out = append(out, c)
	}
	s.cues = out
	return removed
}

// MarkSeen sets last_seen=kind on (list, number, part 0) and clears kind from
// every other cue in the same list only. Unknown cues get a stub carrying
// just the key, filled in by the next refresh.
func (s *Store) MarkSeen(list int, number, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.cues {
		if c.List == list && c.LastSeen != nil && *c.LastSeen == kind {
			c.LastSeen = nil
		}
	}

	k := Key{List: list, Number: number, Part: 0}
	c := s.find(k)
	if c == nil {
		c = NewCue(k)
		s.cues = append(s.cues, c)
		s.sortLocked()
	}
	v := kind
	c.LastSeen = &v
}

// ClearSeen clears last_seen=kind from every cue in list.
func (s *Store) ClearSeen(list int, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cues {
		if c.List == list && c.LastSeen != nil && *c.LastSeen == kind {
			c.LastSeen = nil
		}
	}
}

// Annotation is a partial user-field update; nil members are left alone.
type Annotation struct {
	Notes *string
	Color *string
	Tags  *[]string
	Page  *string
}

// Annotate writes user-owned fields on the cue at key. The cue must exist.
// Colors are validated and normalised; an unparseable color is rejected.
func (s *Store) Annotate(k Key, a Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.find(k)
	if c == nil {
		return fmt.Errorf("no cue %d/%s part %d", k.List, k.Number, k.Part)
	}
	if a.Color != nil {
		hex, err := normalizeColor(*a.Color)
		if err != nil {
			return err
		}
		c.Color = hex
	}
	if a.Notes != nil {
		c.Notes = *a.Notes
	}
	if a.Tags != nil {
		c.Tags = append([]string(nil), *a.Tags...)
	}
	if a.Page != nil {
		c.Page = *a.Page
	}
	return nil
}

// SetImagePath records an uploaded image path on the cue at key.
func (s *Store) SetImagePath(k Key, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.find(k)
	if c == nil {
		return fmt.Errorf("no cue %d/%s part %d", k.List, k.Number, k.Part)
	}
	c.ImagePath = path
	return nil
}

// normalizeColor validates a hex color and returns it in canonical #rrggbb
// form. The empty string resets to the default (no color).
func normalizeColor(c string) (string, error) {
	if c == "" {
		return DefaultColor, nil
	}
	if !strings.HasPrefix(c, "#") {
		c = "#" + c
	}
	parsed, err := colorful.Hex(c)
	if err != nil {
		return "", fmt.Errorf("invalid color %q: %w", c, err)
	}
	return strings.ToLower(parsed.Hex()), nil
}

// ---------------------------------------------------------------------------
// Show notes, scenes, tag colors
// ---------------------------------------------------------------------------

// ShowNotes returns the free-text notes for the current show.
func (s *Store) ShowNotes() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showNotes
}

// SetShowNotes replaces the show notes.
func (s *Store) SetShowNotes(notes string) {
	s.mu.Lock()
	s.showNotes = notes
	s.mu.Unlock()
}

// Scenes returns a copy of the scene annotation map.
func (s *Store) Scenes() map[string]SceneMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]SceneMeta, len(s.scenes))
	for k, v := range s.scenes {
		out[k] = v
	}
	return out
}

// SetScene upserts one scene's annotation.
func (s *Store) SetScene(name string, meta SceneMeta) error {
	if meta.Color != "" {
		hex, err := normalizeColor(meta.Color)
		if err != nil {
			return err
		}
		meta.Color = hex
	}
	s.mu.Lock()
	s.scenes[name] = meta
	s.mu.Unlock()
	return nil
}

// TagColors returns a copy of the tag → color map.
func (s *Store) TagColors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.tagColors))
	for k, v := range s.tagColors {
		out[k] = v
	}
	return out
}

// SetTagColor assigns a color to a tag; an empty color removes the mapping.
func (s *Store) SetTagColor(tag, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if color == "" {
		delete(s.tagColors, tag)
		return nil
	}
	hex, err := normalizeColor(color)
	if err != nil {
		return err
	}
	s.tagColors[tag] = hex
	return nil
}

// ---------------------------------------------------------------------------
// Timings
// ---------------------------------------------------------------------------

// Timings returns a snapshot of the current show's timing record.
func (s *Store) Timings() ShowTimings {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.timings
	t.CueTimings = append([]CueTiming(nil), s.timings.CueTimings...)
	return t
}

// MutateTimings runs fn on the timing record under the lock, then writes the
// timings file immediately (timing state must survive a crash mid-show).
func (s *Store) MutateTimings(fn func(*ShowTimings)) {
	s.mu.Lock()
	fn(&s.timings)
	snapshot := s.timings
	snapshot.CueTimings = append([]CueTiming(nil), s.timings.CueTimings...)
	dir := ShowDir(s.dataDir, s.showName)
	s.mu.Unlock()

	if err := saveJSON(filepath.Join(dir, timingsFile), snapshot); err != nil {
		log.Printf("[store] save timings: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Persistence
// ---------------------------------------------------------------------------

// Persist schedules a debounced write of the current show. Writes within the
// debounce window coalesce; the snapshot is taken when the write fires.
func (s *Store) Persist() {
	s.debounced(func() {
		if err := s.PersistNow(); err != nil {
			log.Printf("[store] persist: %v", err)
		}
	})
}

// PersistNow synchronously writes every file of the current show. Used on
// API mutations that must be durable before the response, and on shutdown.
func (s *Store) PersistNow() error {
	s.mu.Lock()
	dir := ShowDir(s.dataDir, s.showName)
	cues := make([]Cue, 0, len(s.cues))
	for _, c := range s.cues {
		cues = append(cues, copyCue(c))
	}
	notes := showNotesDoc{Notes: s.showNotes}
	scenes := make(map[string]SceneMeta, len(s.scenes))
	for k, v := range s.scenes {
		scenes[k] = v
	}
	tagColors := make(map[string]string, len(s.tagColors))
	for k, v := range s.tagColors {
		tagColors[k] = v
	}
	timings := s.timings
	timings.CueTimings = append([]CueTiming(nil), s.timings.CueTimings...)
	s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var firstErr error
	for _, w := range []struct {
		file string
		v    interface{}
	}{
		{cuesFile, cues},
		{showNotesFile, notes},
		{sceneFile, scenes},
		{tagColorsFile, tagColors},
		{timingsFile, timings},
	} {
		if err := saveJSON(filepath.Join(dir, w.file), w.v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
