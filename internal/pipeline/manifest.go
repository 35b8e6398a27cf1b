package pipeline

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ashourz/AlgoRoyale-sub003/internal/stage"
	"github.com/ashourz/AlgoRoyale-sub003/internal/version"
	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

// ManifestFile records which build last wrote under the data root.
const ManifestFile = "manifest.json"

type Manifest struct {
	Version string `json:"version"`
	RunID   string `json:"run_id"`
}

func (p *Pipeline) manifestPath() string {
	return filepath.Join(p.manager.Root(), ManifestFile)
}

// checkManifest refuses data written by an incompatible build unless force
// is set, then stamps the manifest with the running version.
func (p *Pipeline) checkManifest(force bool) error {
	var stored Manifest

	err := stage.ReadJSON(p.manifestPath(), &stored)
	switch {
	case errors.HasCode(err, errors.ErrCodeDataNotFound):
	case err != nil:
		return err
	default:
		if err := version.CheckDataCompatibility(version.GetVersion(), stored.Version); err != nil {
			if !force {
				return err
			}

			p.logger.Warn("Overriding data version check",
				zap.String("data_version", stored.Version),
				zap.String("version", version.GetVersion()),
				zap.Error(err),
			)
		}
	}

	return stage.WriteJSON(p.manifestPath(), Manifest{Version: version.GetVersion(), RunID: p.runID})
}
