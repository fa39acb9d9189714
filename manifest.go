package localvcs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

const (
	manifestName   = "manifest.cbor"
	objectsDirName = "objects"

	// manifestVersion is the on-disk layout version.
	manifestVersion = 1
)

// manifest is the repository root record. It names the current checkpoint
// and the log file holding the changes made since.
type manifest struct {
	Version    int    `cbor:"version"`
	CaseMode   string `cbor:"case_mode"`
	Checkpoint string `cbor:"checkpoint,omitempty"`
	NextID     int64  `cbor:"next_id"`
	Generation uint64 `cbor:"generation"`
}

// logName returns the change log file name for the manifest's generation.
func (m manifest) logName() string {
	return fmt.Sprintf("changes-%06d.log", m.Generation)
}

var (
	manifestEnc cbor.EncMode
	manifestDec cbor.DecMode
)

func init() {
	var err error
	manifestEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("localvcs: CBOR encoder initialization failed: " + err.Error())
	}
	manifestDec, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("localvcs: CBOR decoder initialization failed: " + err.Error())
	}
}

// readManifest loads the manifest in dir. ok is false if none exists yet.
func readManifest(dir string) (m manifest, ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest{}, false, nil
	}
	if err != nil {
		return manifest{}, false, fmt.Errorf("read manifest: %w", err)
	}
	if err := manifestDec.Unmarshal(data, &m); err != nil {
		return manifest{}, false, fmt.Errorf("%w: manifest: %w", ErrCorrupt, err)
	}
	if m.Version != manifestVersion {
		return manifest{}, false, fmt.Errorf("%w: manifest version %d", ErrCorrupt, m.Version)
	}
	return m, true, nil
}

// writeManifest replaces the manifest in dir atomically.
func writeManifest(dir string, m manifest) error {
	data, err := manifestEnc.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(dir, manifestName)); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	success = true
	return nil
}
