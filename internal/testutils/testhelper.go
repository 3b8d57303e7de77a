package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
)

// TestHelper bundles the common per-test fixtures: the testing handle and a
// debug-level logger so failing tests show the full event flow.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}
