package version

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/ashourz/AlgoRoyale-sub003/pkg/errors"
)

type CompareTestSuite struct {
	suite.Suite
}

func TestCompareSuite(t *testing.T) {
	suite.Run(t, new(CompareTestSuite))
}

func (suite *CompareTestSuite) TestCheckDataCompatibility() {
	tests := []struct {
		name    string
		running string
		data    string
		code    errors.ErrorCode
		message string
	}{
		{name: "exact match", running: "1.2.0", data: "1.2.0"},
		{name: "running patch higher", running: "1.2.1", data: "1.2.0"},
		{name: "data patch higher", running: "1.2.0", data: "1.2.5"},
		{name: "v prefix", running: "v1.2.0", data: "1.2.0"},
		{name: "prerelease", running: "1.2.0-alpha", data: "1.2.0"},
		{name: "build metadata", running: "1.2.0+build123", data: "v1.2.3"},
		{name: "running is main", running: "main", data: "1.3.0"},
		{name: "data is main", running: "1.2.0", data: "main"},
		{name: "minor higher", running: "1.3.0", data: "1.2.0", code: errors.ErrCodeIncompatibleVersion, message: "minor version mismatch"},
		{name: "minor lower", running: "1.1.0", data: "1.2.0", code: errors.ErrCodeIncompatibleVersion, message: "minor version mismatch"},
		{name: "major differs", running: "2.0.0", data: "1.2.0", code: errors.ErrCodeIncompatibleVersion, message: "major version mismatch"},
		{name: "invalid running", running: "not-a-version", data: "1.2.0", code: errors.ErrCodeInvalidInput, message: "invalid running version"},
		{name: "invalid data", running: "1.2.0", data: "not-a-version", code: errors.ErrCodeInvalidInput, message: "invalid data version"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			err := CheckDataCompatibility(tc.running, tc.data)
			if tc.message == "" {
				suite.NoError(err)

				return
			}

			suite.Error(err)
			suite.True(errors.HasCode(err, tc.code), err.Error())
			suite.Contains(err.Error(), tc.message)
		})
	}
}

func (suite *CompareTestSuite) TestGetVersion() {
	original := Version
	defer func() { Version = original }()

	Version = "v9.9.9"
	suite.Equal("v9.9.9", GetVersion())
}
