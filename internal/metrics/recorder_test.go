package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type RecorderTestSuite struct {
	suite.Suite
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderTestSuite))
}

func (suite *RecorderTestSuite) dump(r *Recorder) string {
	path := filepath.Join(suite.T().TempDir(), "royale.prom")
	suite.Require().NoError(r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	suite.Require().NoError(err)

	return string(data)
}

func (suite *RecorderTestSuite) TestCounters() {
	r := New()
	r.PagesWritten("data_ingest", 3)
	r.PagesWritten("data_ingest", 2)
	r.StageError("backtest", "cancelled")
	r.TrialFinished("complete", 10*time.Millisecond)
	r.TrialFinished("failed", time.Millisecond)

	text := suite.dump(r)
	suite.Contains(text, `royale_pages_written_total{stage="data_ingest"} 5`)
	suite.Contains(text, `royale_stage_errors_total{kind="cancelled",stage="backtest"} 1`)
	suite.Contains(text, `royale_optimizer_trials_total{state="failed"} 1`)
	suite.Contains(text, `royale_optimizer_trial_duration_seconds_count 2`)
}

func (suite *RecorderTestSuite) TestNilRecorderIsNoop() {
	var r *Recorder
	r.PagesWritten("x", 1)
	r.PageRead("x")
	r.UnitCompleted("x")
	r.StageError("x", "y")
	r.StageDuration("x", time.Second)
	r.TrialFinished("complete", time.Second)
	r.WindowProcessed("s", "ok")
	r.AllocationFailures("risk_parity", 2)
	suite.Nil(r.Registry())
	suite.NoError(r.WriteTextfile("unused"))
}

func (suite *RecorderTestSuite) TestWriteTextfile() {
	r := New()
	r.UnitCompleted("feature_engineering")

	suite.Contains(suite.dump(r), `royale_units_completed_total{stage="feature_engineering"} 1`)
}
