package stage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// WriteJSON writes v as indented JSON, replacing path atomically.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInternalError, err, "failed to encode %s", filepath.Base(path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodePageWriteFailed, "failed to create result directory", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to write %s", path)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)

		return errors.Wrapf(errors.ErrCodePageWriteFailed, err, "failed to move %s into place", path)
	}

	return nil
}

// ReadJSON decodes the JSON file at path into v. A missing file is DataNotFound.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(errors.ErrCodeDataNotFound, err, "%s does not exist", path)
		}

		return errors.Wrapf(errors.ErrCodePageReadFailed, err, "failed to read %s", path)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(errors.ErrCodeSchemaViolation, err, "failed to decode %s", path)
	}

	return nil
}
