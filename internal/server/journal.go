package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"nftcreator/internal/creator"
)

// Journal writes one JSON file per failed submission so an operator can see
// what was generated or stored before the failure. An empty dir disables it.
type Journal struct {
	dir     string
	logger  *zap.Logger
	metrics *Metrics
}

type journalEntry struct {
	Timestamp    time.Time     `json:"timestamp"`
	SubmissionID string        `json:"submissionId"`
	Draft        creator.Draft `json:"draft"`
	Stage        string        `json:"stage"`
	Kind         string        `json:"kind"`
	Message      string        `json:"message"`
	Error        string        `json:"error,omitempty"`
	MetadataURL  string        `json:"metadataUrl,omitempty"`
	PendingTx    string        `json:"pendingTx,omitempty"`
}

func NewJournal(dir string, metrics *Metrics, logger *zap.Logger) *Journal {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Journal{dir: dir, logger: logger, metrics: metrics}
}

func (j *Journal) StageDone(creator.Phase, time.Duration, error) {}

// SubmissionDone records failed submissions.
func (j *Journal) SubmissionDone(s creator.State) {
	if j.dir == "" || s.Outcome != creator.OutcomeFailed || s.Err == nil {
		return
	}

	entry := journalEntry{
		Timestamp:    time.Now().UTC(),
		SubmissionID: s.SubmissionID,
		Draft:        s.Draft,
		Stage:        s.Err.Stage.String(),
		Kind:         s.Err.Kind.String(),
		Message:      s.Err.Msg,
		PendingTx:    s.PendingTx,
	}
	if s.Err.Err != nil {
		entry.Error = s.Err.Err.Error()
	}
	if s.Metadata != nil {
		entry.MetadataURL = s.Metadata.URL
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		j.logger.Error("journal marshal", zap.Error(err))
		return
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		j.logger.Error("journal mkdir", zap.Error(err))
		return
	}

	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), s.SubmissionID)
	if err := os.WriteFile(filepath.Join(j.dir, name), data, 0o600); err != nil {
		j.logger.Error("journal write", zap.Error(err))
	}
	j.Depth()
}

// Depth counts journal entries and updates the gauge.
func (j *Journal) Depth() int {
	depth := 0
	if j.dir != "" {
		entries, err := os.ReadDir(j.dir)
		if err != nil && !os.IsNotExist(err) {
			j.logger.Warn("journal read", zap.Error(err))
		}
		depth = len(entries)
	}
	if j.metrics != nil {
		j.metrics.setJournalDepth(depth)
	}
	return depth
}

// Observers fans creator events out to several observers.
type Observers []creator.Observer

func (o Observers) StageDone(stage creator.Phase, took time.Duration, err error) {
	for _, obs := range o {
		obs.StageDone(stage, took, err)
	}
}

func (o Observers) SubmissionDone(s creator.State) {
	for _, obs := range o {
		obs.SubmissionDone(s)
	}
}
