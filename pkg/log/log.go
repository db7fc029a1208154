/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type LogLevel int

const (
	LogPrefix     = "[go-router] "
	ErrorPrefix   = "[error] "
	WarningPrefix = "[warn] "
	InfoPrefix    = "[info] "
	DebugPrefix   = "[debug] "
	HelpLevels    = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel LogLevel = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

var levelNames = map[string]LogLevel{
	"error":   ErrorLevel,
	"warning": WarningLevel,
	"warn":    WarningLevel,
	"info":    InfoLevel,
	"debug":   DebugLevel,
}

// ErrLogLevel returned for an unknown level name
type ErrLogLevel struct {
	Level string
}

func (e ErrLogLevel) Error() string {
	return fmt.Sprintf("Wrong log level %q. %s", e.Level, HelpLevels)
}

type Logger struct {
	mu    sync.RWMutex
	level LogLevel
	*log.Logger
}

var logger = &Logger{
	level:  InfoLevel,
	Logger: log.New(os.Stderr, LogPrefix, log.LstdFlags),
}

func ParseLevel(strLevel string) (LogLevel, error) {
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(strLevel))]
	if !ok {
		return InfoLevel, ErrLogLevel{Level: strLevel}
	}
	return level, nil
}

func SetLevel(strLevel string) error {
	level, err := ParseLevel(strLevel)
	if err != nil {
		return err
	}
	logger.mu.Lock()
	logger.level = level
	logger.mu.Unlock()
	return nil
}

// Init redirects the output and sets the level. An unknown level falls back to info
// and the problem is reported through the new output.
func Init(out io.Writer, strLevel string) {
	logger.SetOutput(out)
	if err := SetLevel(strLevel); err != nil {
		logger.mu.Lock()
		logger.level = InfoLevel
		logger.mu.Unlock()
		Warning("%s", err)
	}
}

// Enabled reports whether messages of the given level are printed
func Enabled(level LogLevel) bool {
	logger.mu.RLock()
	defer logger.mu.RUnlock()
	return logger.level >= level
}

func output(level LogLevel, prefix, format string, v ...interface{}) {
	if Enabled(level) {
		logger.Println(fmt.Sprintf(prefix+format, v...))
	}
}

func Error(format string, v ...interface{}) {
	output(ErrorLevel, ErrorPrefix, format, v...)
}

func Warning(format string, v ...interface{}) {
	output(WarningLevel, WarningPrefix, format, v...)
}

func Info(format string, v ...interface{}) {
	output(InfoLevel, InfoPrefix, format, v...)
}

func Debug(format string, v ...interface{}) {
	output(DebugLevel, DebugPrefix, format, v...)
}

type levelWriter struct {
	level  LogLevel
	prefix string
}

func (w levelWriter) Write(p []byte) (int, error) {
	output(w.level, w.prefix, "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// Writer returns an io.Writer printing every write as one message of the given level.
// It is used as the access log of the HTTP API.
func Writer(level LogLevel) io.Writer {
	prefixes := map[LogLevel]string{
		ErrorLevel:   ErrorPrefix,
		WarningLevel: WarningPrefix,
		InfoLevel:    InfoPrefix,
		DebugLevel:   DebugPrefix,
	}
	return levelWriter{level: level, prefix: prefixes[level]}
}
