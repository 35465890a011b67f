// Package logger даёт компонентам узкий интерфейс логирования поверх jww.
package logger

import (
	jww "github.com/spf13/jwalterweatherman"
)

type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// глобальные логгеры jww, настраиваются в main
type global struct{}

func (global) Infof(format string, v ...interface{})  { jww.INFO.Printf(format, v...) }
func (global) Warnf(format string, v ...interface{})  { jww.WARN.Printf(format, v...) }
func (global) Errorf(format string, v ...interface{}) { jww.ERROR.Printf(format, v...) }

func Default() Logger {
	return global{}
}

type notepad struct {
	n *jww.Notepad
}

func (l notepad) Infof(format string, v ...interface{})  { l.n.INFO.Printf(format, v...) }
func (l notepad) Warnf(format string, v ...interface{})  { l.n.WARN.Printf(format, v...) }
func (l notepad) Errorf(format string, v ...interface{}) { l.n.ERROR.Printf(format, v...) }

// New оборачивает отдельный блокнот jww, например для тестов
func New(n *jww.Notepad) Logger {
	if n == nil {
		return Default()
	}
	return notepad{n}
}

// OrDefault подставляет глобальный логгер вместо nil
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default()
	}
	return l
}
