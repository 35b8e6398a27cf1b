package version

import (
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// CheckDataCompatibility reports whether stage data written by dataVersion
// can be read by a build at runningVersion.
//
// Compatibility Rules:
//   - If either version is "main" (development build), the check is skipped
//   - Major and minor versions must match exactly
//   - Patch versions can differ (e.g., 1.2.0 reads data written by 1.2.5)
func CheckDataCompatibility(runningVersion, dataVersion string) error {
	runningVersion = strings.TrimPrefix(runningVersion, "v")
	dataVersion = strings.TrimPrefix(dataVersion, "v")

	if runningVersion == "main" || dataVersion == "main" {
		return nil
	}

	running, err := semver.NewVersion(runningVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidInput, err, "invalid running version %q", runningVersion)
	}

	data, err := semver.NewVersion(dataVersion)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidInput, err, "invalid data version %q", dataVersion)
	}

	if running.Major() != data.Major() {
		return errors.Newf(errors.ErrCodeIncompatibleVersion, "major version mismatch: running %d.x.x but data was written by %d.x.x",
			running.Major(), data.Major())
	}

	if running.Minor() != data.Minor() {
		return errors.Newf(errors.ErrCodeIncompatibleVersion, "minor version mismatch: running %d.%d.x but data was written by %d.%d.x",
			running.Major(), running.Minor(), data.Major(), data.Minor())
	}

	return nil
}
