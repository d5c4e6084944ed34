package telemetry

import (
	"github.com/harun/tally/pkg/session"
	"github.com/harun/tally/pkg/upload"
)

// Report is a snapshot of the local queue.
type Report struct {
	DataDir          string `yaml:"data_dir"`
	InstallID        string `yaml:"install_id"`
	NextSequence     int64  `yaml:"next_sequence"`
	SessionOpen      bool   `yaml:"session_open"`
	StoredSessions   int    `yaml:"stored_sessions"`
	StagedFiles      int    `yaml:"staged_files"`
	UploadInProgress bool   `yaml:"upload_in_progress"`
}

// Status reports the install identity and pending files. Reading the
// metadata initialises it when missing.
func (c *Client) Status() (Report, error) {
	dir, err := c.files.Dir()
	if err != nil {
		return Report{}, err
	}
	rec, err := c.meta.Get()
	if err != nil {
		return Report{}, err
	}
	sessions, err := c.files.Count(session.FilePrefix)
	if err != nil {
		return Report{}, err
	}
	staged, err := c.files.Count(upload.StagingPrefix)
	if err != nil {
		return Report{}, err
	}
	_, open := c.writer.Current()

	return Report{
		DataDir:          dir,
		InstallID:        rec.InstallID,
		NextSequence:     rec.Sequence,
		SessionOpen:      open,
		StoredSessions:   sessions,
		StagedFiles:      staged,
		UploadInProgress: c.uploader.InProgress(),
	}, nil
}
