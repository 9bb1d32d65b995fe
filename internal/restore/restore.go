// Package restore implements the on-disk handoff file a supervisor writes
// on a graceful "stopwraith" exit and reads back (once) on the next
// start-up, so a fresh process can re-adopt containers the previous one
// left running. The write-then-exit / delete-on-read pair is the whole
// protocol, built with the usual encoding/json + logrus.Entry plumbing.
package restore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nstack/wraith-supervisor/internal/cluster"
)

// generation is stamped into every restore file this process writes. It is
// generated afresh at each process start, so it identifies the writing
// process, not a build or a file-format version: a file read back by a
// later process always carries a different value. It has no functional
// gating — a differing, missing or unparsable value is only noted at debug
// level and the records are used anyway.
var generation = uuid.NewString()

// file is the on-disk schema.
type file struct {
	Generation string                    `json:"generation,omitempty"`
	Servers    []cluster.SerializedServer `json:"servers"`
}

// Path returns the restore-file path for a given config file path.
func Path(configPath string) string {
	return configPath + ".restore.json"
}

// Write serializes servers to path, overwriting any existing file.
func Write(path string, servers []cluster.SerializedServer) error {
	f := file{Generation: generation, Servers: servers}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding restore file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing restore file: %w", err)
	}
	return nil
}

// Read reads and deletes the restore file at path, returning the records
// it held. A missing file is not an error: it returns an empty slice. Any
// other failure (unreadable, corrupt JSON) is logged as a warning and also
// returns an empty slice: a bad restore file degrades to "proceed with
// nothing restored", never a fatal start-up error.
//
// The file is deleted whenever it was found, even if it failed to parse,
// so a corrupt restore file is never replayed against containers that may
// have since been reaped.
func Read(path string, log *logrus.Entry) []cluster.SerializedServer {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warn("could not read restore file")
		}
		return nil
	}

	if rmErr := os.Remove(path); rmErr != nil {
		log.WithError(rmErr).Warn("could not delete restore file after reading it")
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		log.WithError(err).Warn("restore file was corrupt, proceeding with nothing restored")
		return nil
	}

	if f.Generation != "" && f.Generation != generation {
		log.WithField("generation", f.Generation).Debug("restore file was written by a different supervisor process, attempting to use it anyway")
	}

	return f.Servers
}
