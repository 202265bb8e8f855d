package logsvc

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
	"github.com/trezcool/classroom/core/session"
)

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Env: "TEST", TestMode: true})

	usr := session.User{ID: "u1", Email: "alice@x.com", Role: session.RoleStudent}
	args := logger.prepare("boom", []interface{}{errors.New("cause"), usr, map[string]interface{}{"op": "signIn"}})
	if len(args) != 3 {
		t.Fatalf("prepare() = %v, want msg, error and extras only", args)
	}
	for _, arg := range args {
		if _, ok := arg.(session.User); ok {
			t.Errorf("prepare() kept the user in %v", args)
		}
	}

	logger.Warn("compensating sign-out", map[string]interface{}{"op": "signIn"}, usr)
	out := buf.String()
	for _, want := range []string{"WARN: compensating sign-out", "op:signIn", "alice@x.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
}
