package snapshot

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kirillkom/fin-research-assistant/internal/core/domain"
)

const formatVersion = 1

type envelope struct {
	Kind     string          `json:"kind"`
	Version  int             `json:"version"`
	Checksum string          `json:"checksum"`
	Payload  json.RawMessage `json:"payload"`
}

// WriteAtomic streams content into a temp file next to path and renames it
// into place, so readers never observe a partially written snapshot.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	buf := bufio.NewWriter(tmp)
	if err := write(buf); err != nil {
		cleanup()
		return err
	}
	if err := buf.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// WriteJSON stores payload inside a checksummed envelope tagged with kind.
func WriteJSON(path, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", kind, err)
	}
	env := envelope{
		Kind:     kind,
		Version:  formatVersion,
		Checksum: Checksum(raw),
		Payload:  raw,
	}
	return WriteAtomic(path, func(w io.Writer) error {
		if err := json.NewEncoder(w).Encode(env); err != nil {
			return fmt.Errorf("encode %s snapshot: %w", kind, err)
		}
		return nil
	})
}

// ReadJSON loads a snapshot written by WriteJSON. A missing file is reported
// as fs.ErrNotExist; anything unreadable is reported as ErrIndexCorrupt.
func ReadJSON(path, kind string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read %s snapshot: %w", kind, err)
		}
		return domain.WrapError(domain.ErrIndexCorrupt, "read "+kind+" snapshot", err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.WrapError(domain.ErrIndexCorrupt, "decode "+kind+" snapshot", err)
	}
	if env.Kind != kind {
		return domain.WrapError(domain.ErrIndexCorrupt, "decode "+kind+" snapshot", fmt.Errorf("unexpected kind %q", env.Kind))
	}
	if env.Version != formatVersion {
		return domain.WrapError(domain.ErrIndexCorrupt, "decode "+kind+" snapshot", fmt.Errorf("unsupported version %d", env.Version))
	}
	if Checksum(env.Payload) != env.Checksum {
		return domain.WrapError(domain.ErrIndexCorrupt, "verify "+kind+" snapshot", errors.New("checksum mismatch"))
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return domain.WrapError(domain.ErrIndexCorrupt, "decode "+kind+" payload", err)
	}
	return nil
}

func Checksum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
