package eventbus

import "voxd-server/internal/platform/logging"

// LogHandler subscribes a set of diagnostic handlers that route bus events
// into the structured logger, so operators get one coherent log stream
// instead of each pipeline stage logging its own events ad hoc.
type LogHandler struct {
	log *logging.Logger
}

// NewLogHandler builds a LogHandler bound to log.
func NewLogHandler(log *logging.Logger) *LogHandler {
	return &LogHandler{log: log.WithTag("eventbus")}
}

// Install subscribes all diagnostic handlers on the given bus-like
// subscriber (either the package-level Subscribe or an AsyncEventBus).
func (h *LogHandler) Install(subscribe func(topic string, fn interface{}) error) {
	_ = subscribe(EventTranscriptResult, func(data TranscriptEventData) {
		h.log.Info("transcript result", "session", data.SessionID, "utterance", data.UtteranceID, "text", data.Text)
	})

	_ = subscribe(EventDialogCompleted, func(data DialogEventData) {
		h.log.Info("dialog reply completed", "session", data.SessionID, "gen", data.Generation, "chars", len(data.Content))
	})

	_ = subscribe(EventSentenceReady, func(data SentenceEventData) {
		h.log.Debug("sentence ready for synthesis", "session", data.SessionID, "gen", data.Generation, "index", data.Index)
	})

	_ = subscribe(EventInterruptTriggered, func(data InterruptEventData) {
		h.log.Info("interrupt triggered", "session", data.SessionID, "gen", data.NewGeneration, "reason", data.Reason)
	})

	_ = subscribe(EventBackendUnhealthy, func(data BackendEventData) {
		h.log.Warn("backend unhealthy", "restarts", data.RestartCount, "message", data.Message)
	})

	_ = subscribe(EventBackendDead, func(data BackendEventData) {
		h.log.Error("backend permanently dead", "restarts", data.RestartCount, "message", data.Message)
	})

	_ = subscribe(EventTranscriptError, func(data SystemEventData) {
		h.log.Warn("transcription error", "message", data.Message)
	})

	_ = subscribe(EventDialogError, func(data SystemEventData) {
		h.log.Warn("dialog engine error", "message", data.Message)
	})

	_ = subscribe(EventSynthError, func(data SystemEventData) {
		h.log.Warn("synthesis error", "message", data.Message)
	})

	_ = subscribe(EventSystemError, func(data SystemEventData) {
		h.log.Error(data.Message)
	})
}
