package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"bankbot/internal/domain"
)

const artifactVersion = 1

type artifact struct {
	Version int    `json:"version"`
	Model   *Model `json:"model"`
}

// Save writes the model to path atomically: readers see either the previous
// file or the complete new one.
func (m *Model) Save(path string) error {
	data, err := json.Marshal(artifact{Version: artifactVersion, Model: m})
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// Load reads a model written by Save. A missing file yields
// ErrArtifactUnavailable.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrArtifactUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrArtifactUnavailable, path, err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported model version %d", domain.ErrArtifactUnavailable, a.Version)
	}
	if err := a.Model.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrArtifactUnavailable, err)
	}
	return a.Model, nil
}

func (m *Model) validate() error {
	if m == nil {
		return errors.New("model missing")
	}
	if len(m.Labels) == 0 {
		return errors.New("model has no labels")
	}
	if !sort.StringsAreSorted(m.Labels) {
		return errors.New("model labels not sorted")
	}
	if m.Vectorizer == nil {
		return errors.New("model has no vectorizer")
	}
	if len(m.Vectorizer.Vocab) != len(m.Vectorizer.IDF) {
		return errors.New("vocabulary and idf sizes differ")
	}
	if len(m.Labels) == 1 {
		return nil
	}
	r := m.Regression
	if r == nil || len(r.Weights) != len(m.Labels) || len(r.Bias) != len(m.Labels) {
		return errors.New("regression shape does not match labels")
	}
	for _, row := range r.Weights {
		if len(row) != m.Vectorizer.Size() {
			return errors.New("regression width does not match vocabulary")
		}
	}
	return nil
}

// Holder publishes the current model to concurrent readers. Swaps are
// atomic; a reader never sees a partially built model.
type Holder struct {
	current atomic.Pointer[Model]
}

func NewHolder(m *Model) *Holder {
	h := &Holder{}
	if m != nil {
		h.current.Store(m)
	}
	return h
}

// Current returns the live model or ErrArtifactUnavailable.
func (h *Holder) Current() (*Model, error) {
	m := h.current.Load()
	if m == nil {
		return nil, domain.ErrArtifactUnavailable
	}
	return m, nil
}

func (h *Holder) Swap(m *Model) (previous *Model) {
	return h.current.Swap(m)
}
