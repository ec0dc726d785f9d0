package scheduler

import (
	"testing"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCronLogger_RecoveredPanicGoesToZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	clog := newCronLogger(zap.New(core))

	job := cron.NewChain(cron.Recover(clog)).Then(cron.FuncJob(func() { panic("boom") }))
	job.Run()

	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	if len(errs) != 1 {
		t.Fatalf("error entries = %d, want 1", len(errs))
	}
	entry := errs[0]
	if entry.LoggerName != "cron" || entry.Message != "panic" {
		t.Fatalf("entry = %s %q", entry.LoggerName, entry.Message)
	}
	if _, ok := entry.ContextMap()["error"]; !ok {
		t.Fatalf("missing error field: %v", entry.ContextMap())
	}
}

func TestCronLogger_InfoIsDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	newCronLogger(zap.New(core)).Info("wake", "now", "x")

	all := logs.All()
	if len(all) != 1 || all[0].Level != zapcore.DebugLevel || all[0].ContextMap()["now"] != "x" {
		t.Fatalf("entries = %+v", all)
	}
}
