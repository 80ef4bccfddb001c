package featureflags

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Flag names used by the retrieval engine.
const (
	AIDescriptionGeneration = "ai_description_generation"
	TMDBVerification        = "tmdb_verification"
)

// Store is a boolean flag lookup loaded from a YAML file and
// hot-reloaded when the file changes. Passed explicitly into the
// retrieval engine so the state machine stays deterministic in tests.
type Store struct {
	mu     sync.RWMutex
	flags  map[string]bool
	logger *zap.Logger
	v      *viper.Viper
}

// NewStore loads flags from path and watches it for changes.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read feature flags: %w", err)
	}

	s := &Store{logger: logger, v: v}
	s.reload()

	v.OnConfigChange(func(e fsnotify.Event) {
		s.reload()
		s.logger.Info("Feature flags reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return s, nil
}

// NewStaticStore returns a store with fixed flags; used by tests.
func NewStaticStore(flags map[string]bool) *Store {
	copied := make(map[string]bool, len(flags))
	for k, val := range flags {
		copied[k] = val
	}
	return &Store{flags: copied, logger: zap.NewNop()}
}

// IsEnabled reports whether the named flag is on. Unknown flags are off.
func (s *Store) IsEnabled(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags[name]
}

func (s *Store) reload() {
	raw := s.v.GetStringMap("flags")
	flags := make(map[string]bool, len(raw))
	for name := range raw {
		flags[name] = s.v.GetBool("flags." + name)
	}

	s.mu.Lock()
	s.flags = flags
	s.mu.Unlock()
}
