// Package logging provides structured logging for phasekit runs.
//
// It wraps Go's log/slog to write JSON lines that can be filtered after a run
// by run, group or step id.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger(".phasekit", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("run started", "groups", 3)
//
// # Context Propagation
//
// Child loggers carry persistent attributes:
//
//	groupLogger := logger.WithRun(runID).WithGroup("B")
//	groupLogger.WithStep("B.2").Warn("step failed", "error", msg)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"step failed","run_id":"...","group_id":"B","step_id":"B.2","error":"..."}
//
// # Log Rotation
//
// [NewLoggerWithRotation] rotates phasekit.log once it exceeds
// RotationConfig.MaxSizeMB. Backups are named phasekit.log.1 (newest) to
// phasekit.log.N, gzipped when RotationConfig.Compress is set.
//
// # Thread Safety
//
// [Logger] and [RotatingWriter] are safe for concurrent use. Parallel groups
// log from several goroutines through child loggers sharing one writer.
//
// # Testing
//
// Use [NopLogger] to discard output, or [New] with a bytes.Buffer to assert
// on entries.
package logging
