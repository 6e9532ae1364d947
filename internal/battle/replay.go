package battle

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Frame is one recorded point of a combat phase: an encoded snapshot and what had just happened.
type Frame struct {
	Label    string
	Checksum string
	Data     []byte
}

// Replay is the sequence of snapshots taken during a game's combat phases.
type Replay struct {
	GameID       string
	Frames       []Frame
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay.
func NewReplay(gameID string) *Replay {
	return &Replay{GameID: gameID}
}

// Record encodes the snapshot and appends it.
func (r *Replay) Record(label string, s *Snapshot) error {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	data, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Frames = append(r.Frames, Frame{Label: label, Checksum: sum.Hash, Data: data})
	return nil
}

// Start rewinds to the first frame.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentIndex = 0
}

// Next decodes the current frame and moves forward; nil at the end.
func (r *Replay) Next() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CurrentIndex >= len(r.Frames) {
		return nil, nil
	}
	f := r.Frames[r.CurrentIndex]
	r.CurrentIndex++
	return UnmarshalSnapshot(f.Data)
}

// Previous steps back and decodes that frame; nil at the start.
func (r *Replay) Previous() (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CurrentIndex == 0 {
		return nil, nil
	}
	r.CurrentIndex--
	return UnmarshalSnapshot(r.Frames[r.CurrentIndex].Data)
}

// Size returns the number of frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Frames)
}

// At decodes the frame at index.
func (r *Replay) At(index int) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.Frames) {
		return nil, fmt.Errorf("replay frame %d out of range [0,%d)", index, len(r.Frames))
	}
	return UnmarshalSnapshot(r.Frames[index].Data)
}

// Labels lists the frame labels in order.
func (r *Replay) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.Frames))
	for i, f := range r.Frames {
		out[i] = f.Label
	}
	return out
}

type replayMetadata struct {
	GameID     string
	Timestamp  time.Time
	Version    int
	FrameCount int
}

// SaveToFile writes the replay to <directory>/<game id>.replay.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(filepath.Join(directory, r.GameID+".replay"))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gz := gzip.NewWriter(file)
	enc := gob.NewEncoder(gz)
	meta := replayMetadata{GameID: r.GameID, Timestamp: time.Now().UTC(), Version: SnapshotVersion, FrameCount: len(r.Frames)}
	if err := enc.Encode(&meta); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	for i := range r.Frames {
		if err := enc.Encode(&r.Frames[i]); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	return gz.Close()
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	file, err := os.Open(filepath.Join(directory, gameID+".replay"))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	dec := gob.NewDecoder(gz)

	var meta replayMetadata
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if meta.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", meta.Version)
	}
	replay := NewReplay(meta.GameID)
	for i := 0; i < meta.FrameCount; i++ {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		replay.Frames = append(replay.Frames, f)
	}
	return replay, nil
}

// ReplayRecorder keeps one replay per game while recording is enabled.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	saveDir string
}

// NewReplayRecorder creates a recorder saving under saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplayRecorder{logger: logger, replays: make(map[string]*Replay), saveDir: saveDir}
}

// StartRecording begins a fresh replay for the game.
func (rr *ReplayRecorder) StartRecording(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.replays[gameID] = NewReplay(gameID)
	rr.logger.Info("started replay recording", zap.String("game_id", gameID))
}

// IsRecording reports whether the game is being recorded.
func (rr *ReplayRecorder) IsRecording(gameID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	return rr.replays[gameID] != nil
}

// Record appends a frame when the game is being recorded.
func (rr *ReplayRecorder) Record(gameID, label string, s *Snapshot) error {
	rr.mu.RLock()
	replay := rr.replays[gameID]
	rr.mu.RUnlock()
	if replay == nil {
		return nil
	}
	if err := replay.Record(label, s); err != nil {
		return fmt.Errorf("record replay frame: %w", err)
	}
	rr.logger.Debug("recorded replay frame",
		zap.String("game_id", gameID),
		zap.String("label", label),
		zap.Int("frame_count", replay.Size()),
	)
	return nil
}

// Replay returns the in-memory replay of the game.
func (rr *ReplayRecorder) Replay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	r, ok := rr.replays[gameID]
	return r, ok
}

// SaveReplay writes the replay to disk and stops recording.
func (rr *ReplayRecorder) SaveReplay(gameID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[gameID]
	delete(rr.replays, gameID)
	rr.mu.Unlock()
	if !ok {
		return fmt.Errorf("no replay found for game %s", gameID)
	}
	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	rr.logger.Info("saved replay to disk",
		zap.String("game_id", gameID),
		zap.Int("frame_count", replay.Size()),
		zap.String("directory", rr.saveDir),
	)
	return nil
}

// LoadReplay reads a saved replay.
func (rr *ReplayRecorder) LoadReplay(gameID string) (*Replay, error) {
	return LoadReplayFromFile(rr.saveDir, gameID)
}
