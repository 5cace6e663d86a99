package mock

import "livetrader/internal/core"

// NopLogger discards everything
type NopLogger struct{}

func (m *NopLogger) Debug(msg string, fields ...interface{})               {}
func (m *NopLogger) Info(msg string, fields ...interface{})                {}
func (m *NopLogger) Warn(msg string, fields ...interface{})                {}
func (m *NopLogger) Error(msg string, fields ...interface{})               {}
func (m *NopLogger) Fatal(msg string, fields ...interface{})               {}
func (m *NopLogger) WithField(key string, value interface{}) core.ILogger  { return m }
func (m *NopLogger) WithFields(fields map[string]interface{}) core.ILogger { return m }
