// File: internal/logging/logging.go
// Package logging holds the shared engine logger.
// License: Apache-2.0

package logging

import (
	"os"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
)

// Log is the engine-wide logger. Components tag entries with a "component"
// field via For.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&nested.Formatter{
		HideKeys:    true,
		FieldsOrder: []string{"component", "loop"},
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// For returns a component-scoped entry.
func For(component string) *logrus.Entry {
	return Log.WithField("component", component)
}
