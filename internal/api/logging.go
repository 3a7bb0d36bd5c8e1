package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func (s *Server) logEvent(r *http.Request, event string, fields ...zap.Field) {
	s.log(zapcore.InfoLevel, r, event, fields...)
}

func (s *Server) log(level zapcore.Level, r *http.Request, event string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.String("principal", Principal(r.Context())),
	)
	s.logger.Log(level, event, fields...)
}

// fail writes the error response for err and logs the failed event. Only
// internal errors carry their cause.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, event string, err error, fields ...zap.Field) {
	status, code := classify(err)
	fields = append(fields, zap.String("reason", code))
	if status == http.StatusInternalServerError {
		s.log(zapcore.ErrorLevel, r, event, append(fields, zap.Error(err))...)
	} else {
		s.logEvent(r, event, fields...)
	}
	writeError(w, status, code)
}
