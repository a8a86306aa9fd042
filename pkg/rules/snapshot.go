package rules

import (
	"encoding/gob"
	"fmt"
	"os"
)

// LoadSnapshot decodes a gob-encoded Spec written by SaveSnapshot.
func LoadSnapshot(path string) (*Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Msg: "open snapshot", Err: err}
	}
	defer f.Close()

	var spec Spec
	if err := gob.NewDecoder(f).Decode(&spec); err != nil {
		return nil, &ConfigError{Source: path, Msg: "decode snapshot", Err: err}
	}
	if spec.MetaVars == nil {
		spec.MetaVars = map[string]string{}
	}
	return &spec, nil
}

// SaveSnapshot serializes spec to path. The spec is compiled first so an
// invalid document never produces a snapshot.
func SaveSnapshot(spec *Spec, path string) error {
	if _, err := Compile(spec); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(spec); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}
