package logsvc

import (
	"bytes"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/rollcall/core"
)

func TestRollbarLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(buf, "", 0), &core.Config{Env: "test"})
	logger.Enable(false)

	logger.Warn("3 observations unmatched", map[string]interface{}{"course": "CS101"}, core.Person{ID: "u1"})
	logger.Error("saving attendance", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "WARN: 3 observations unmatched")
	assert.Contains(t, out, "map[course:CS101]")
	assert.Contains(t, out, "ERROR: saving attendance")
	assert.Contains(t, out, "boom")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	args := logger.prepare("msg", []interface{}{core.Person{ID: "u1"}, "extra", core.Person{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", "extra"}, args)
}
