// Package logging builds the zap loggers used across the debugger.
//
// Production loggers write sampled JSON; development loggers write a
// colored console format to stderr. Each subsystem receives a named child
// from Component and falls back to zap.NewNop when none is configured.
//
// Actor, Resource and Scenario build the fields shared by every log line
// that concerns a simulated entity, so entries can be filtered by ID:
//
//	logger, err := logging.New(logging.DefaultConfig())
//	orch := orchestrator.New(orchestrator.WithLogger(logger.Component("orchestrator")))
//	logger.Info("Operation blocked", logging.Actor(a), logging.Resource(r))
package logging
