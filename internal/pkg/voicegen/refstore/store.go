// Package refstore keeps the reference recordings used to condition voice
// cloning. Clips are mono PCM WAV files in a single directory; the store
// only ever adds files.
package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"voicegen/internal/pkg/voicegen/apperr"
	"voicegen/internal/pkg/voicegen/audio"
)

const clipExt = ".wav"

// Clip is a saved reference recording.
type Clip struct {
	Name       string
	Path       string
	SampleRate int
	CreatedAt  time.Time
}

type Store struct {
	dir string
}

// Open returns a store rooted at dir, creating the directory if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, apperr.New(apperr.KindIO, "open clip store", "directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "open clip store", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

// List returns the clips currently on disk, ordered by file name. Each call
// rescans the directory.
func (s *Store) List() ([]Clip, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindIO, "list clips", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isClipName(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	clips := make([]Clip, 0, len(names))
	for _, name := range names {
		c, err := s.stat(name)
		if err != nil {
			log.Warn().Err(err).Str("clip", name).Msg("Skipping unreadable reference clip")
			continue
		}
		clips = append(clips, c)
	}
	return clips, nil
}

// Select returns the clip called name. Matching is on the file name, with or
// without the .wav extension, ignoring case.
func (s *Store) Select(name string) (Clip, error) {
	clips, err := s.List()
	if err != nil {
		return Clip{}, err
	}
	want := withExt(filepath.Base(name))
	for _, c := range clips {
		if strings.EqualFold(c.Name, want) {
			return c, nil
		}
	}
	return Clip{}, apperr.Errorf(apperr.KindNotFound, "select clip", "reference clip %q not found in %s", name, s.dir)
}

// Save writes samples as a new clip. Relative names resolve inside the store
// directory and get a .wav extension when they have none; any other extension
// is refused. Existing clips, including ones differing only in case, are
// never overwritten.
func (s *Store) Save(name string, samples []int16, sampleRate int) (Clip, error) {
	path, err := s.resolve(name)
	if err != nil {
		return Clip{}, err
	}
	if len(samples) == 0 {
		return Clip{}, apperr.New(apperr.KindIO, "save clip", "no samples to save")
	}
	if existing, ok := s.lookup(filepath.Base(path)); ok {
		return Clip{}, apperr.Errorf(apperr.KindIO, "save clip", "%s already exists", filepath.Join(s.dir, existing))
	}

	if err := audio.WriteWAV(path, samples, sampleRate); err != nil {
		return Clip{}, apperr.Wrap(apperr.KindIO, "save clip", err)
	}

	c, err := s.stat(filepath.Base(path))
	if err != nil {
		return Clip{}, apperr.Wrap(apperr.KindIO, "save clip", err)
	}
	log.Info().Str("clip", c.Name).Int("sample_rate", sampleRate).Msg("Reference clip saved")
	return c, nil
}

// Import copies an existing WAV recording into the store. An empty name
// keeps the source file name.
func (s *Store) Import(srcPath, name string) (Clip, error) {
	a, err := audio.LoadWAV(srcPath)
	if err != nil {
		return Clip{}, apperr.Wrap(apperr.KindIO, "import clip", err)
	}
	if name == "" {
		name = filepath.Base(srcPath)
	}
	return s.Save(name, a.Int16(), a.SampleRate)
}

func (s *Store) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.New(apperr.KindIO, "save clip", "clip name must not be empty")
	}
	path := withExt(name)
	if !isClipName(path) {
		return "", apperr.Errorf(apperr.KindIO, "save clip",
			"%s: reference clips must be %s files", name, clipExt)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dir, path)
	}
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.dir) {
		return "", apperr.Errorf(apperr.KindIO, "save clip", "%s is outside the clip directory %s", path, s.dir)
	}
	return path, nil
}

// lookup finds an entry in the store directory whose name matches name
// ignoring case.
func (s *Store) lookup(name string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), name) {
			return e.Name(), true
		}
	}
	return "", false
}

func (s *Store) stat(name string) (Clip, error) {
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return Clip{}, err
	}
	rate, err := audio.ReadWAVInfo(path)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", name, err)
	}
	return Clip{
		Name:       name,
		Path:       path,
		SampleRate: rate,
		CreatedAt:  info.ModTime(),
	}, nil
}

func isClipName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), clipExt)
}

func withExt(name string) string {
	if filepath.Ext(name) == "" {
		return name + clipExt
	}
	return name
}
