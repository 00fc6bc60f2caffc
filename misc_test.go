// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2025.10.4
//

package gopsl_test

import (
	"bytes"
	"os"
	"testing"

	m "github.com/mkhts/gopsl"
	"github.com/stretchr/testify/assert"
)

func TestPrintB(t *testing.T) {
	var buf bytes.Buffer
	m.Log.SetOutput(&buf)
	defer m.Log.SetOutput(os.Stderr)

	m.PrintB(testTime(), "%s: %v\n", "missing_ephemeris", m.ErrMissingEphemeris)
	assert.Contains(t, buf.String(), "gpst=\"2025-10-01T03:00:00.000000\"")
	assert.Contains(t, buf.String(), "missing_ephemeris: missing ephemeris")
}
