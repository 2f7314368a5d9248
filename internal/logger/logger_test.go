package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: WarnLevel, Output: &buf, JSON: true})

	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown", "task_id", "t1")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"task_id":"t1"`)
}

func TestWith_CarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: DebugLevel, Output: &buf, JSON: true}).With("component", "dispatch")

	log.Debug("tick")
	assert.Contains(t, buf.String(), `"component":"dispatch"`)
}
