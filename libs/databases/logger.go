package databases

import (
	"fmt"

	"go.uber.org/zap"
	"xorm.io/xorm/log"
)

// sqlLogger 把 xorm 的日志转到 zap
type sqlLogger struct {
	logger  *zap.Logger
	level   log.LogLevel
	showSQL bool
}

func newSQLLogger(l *zap.Logger) *sqlLogger {
	return &sqlLogger{logger: l, level: log.LOG_INFO}
}

func (m *sqlLogger) Debug(v ...interface{}) { m.logger.Debug(fmt.Sprint(v...)) }
func (m *sqlLogger) Debugf(format string, v ...interface{}) {
	m.logger.Debug(fmt.Sprintf(format, v...))
}
func (m *sqlLogger) Error(v ...interface{}) { m.logger.Error(fmt.Sprint(v...)) }
func (m *sqlLogger) Errorf(format string, v ...interface{}) {
	m.logger.Error(fmt.Sprintf(format, v...))
}
func (m *sqlLogger) Info(v ...interface{}) { m.logger.Info(fmt.Sprint(v...)) }
func (m *sqlLogger) Infof(format string, v ...interface{}) {
	m.logger.Info(fmt.Sprintf(format, v...))
}
func (m *sqlLogger) Warn(v ...interface{}) { m.logger.Warn(fmt.Sprint(v...)) }
func (m *sqlLogger) Warnf(format string, v ...interface{}) {
	m.logger.Warn(fmt.Sprintf(format, v...))
}

func (m *sqlLogger) Level() log.LogLevel     { return m.level }
func (m *sqlLogger) SetLevel(l log.LogLevel) { m.level = l }
func (m *sqlLogger) ShowSQL(show ...bool)    { m.showSQL = len(show) == 0 || show[0] }
func (m *sqlLogger) IsShowSQL() bool         { return m.showSQL }
