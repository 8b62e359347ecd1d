package main

import (
	"serpforge/cmd/serp-forge/commands"
	"serpforge/lib/serviceutil"
	"serpforge/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()
	telemetry.SetupFromEnv(ctx, "serp-forge")
	telemetry.InitSlog(true)
	telemetry.InstrumentPerfStats(ctx)
	commands.ExecuteContext(ctx)
}
