package go_playsight

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// AppState is the small piece of telemetry state that survives process
// restarts: a stable device id and the final session snapshot of the
// previous run, so the next launch can report why the last session ended.
type AppState struct {
	sync.Mutex

	path string
	lock *flock.Flock

	DeviceId string          `json:"device_id"`
	LastExit json.RawMessage `json:"last_exit,omitempty"`
}

// Read loads state from stateDir, falling back to fresh defaults if the
// file is missing or unparsable. Parse errors never propagate past this
// boundary.
func (s *AppState) Read(stateDir string) error {
	s.path = filepath.Join(stateDir, "state.json")
	s.lock = flock.New(filepath.Join(stateDir, "state.lock"))

	if content, err := os.ReadFile(s.path); err == nil {
		if err := json.Unmarshal(content, &s); err != nil {
			log.WithError(err).Errorf("failed unmarshalling state file, using defaults")
			s.DeviceId, s.LastExit = "", nil
		} else {
			log.Debugf("app state loaded")
		}
	} else {
		log.Debugf("no app state found")
	}

	if s.DeviceId == "" {
		idBytes := make([]byte, 20)
		_, _ = rand.Read(idBytes)
		s.DeviceId = hex.EncodeToString(idBytes)
	}

	return nil
}

// Acquire takes the state file lock, guarding against a second daemon
// instance writing over the same state directory.
func (s *AppState) Acquire() error {
	ok, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed locking state file: %w", err)
	} else if !ok {
		return fmt.Errorf("state directory already in use")
	}

	return nil
}

func (s *AppState) Release() {
	_ = s.lock.Unlock()
}

func (s *AppState) Write() error {
	s.Lock()
	defer s.Unlock()

	// Create a temporary file, and overwrite the old file.
	// This is a way to atomically replace files.
	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed creating temporary file for app state: %w", err)
	}

	if err := json.NewEncoder(tmpFile).Encode(&s); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("failed writing marshalled app state: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed closing temporary app state file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), s.path); err != nil {
		return fmt.Errorf("failed replacing app state file: %w", err)
	}

	return nil
}
