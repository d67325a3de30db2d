package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	rawslog "log/slog"

	"github.com/stretchr/testify/require"
)

type testMethod struct {
	fn    func(msg string, args ...any)
	level rawslog.Level
}

var (
	LogText         string = "Test Log Value"
	CustomFieldName string = "Somekey"
	CustomFieldVal  any    = "SomeVal"
)

type testLogJSON struct {
	Time  time.Time `json:"time"`
	Level string    `json:"level"`
	Msg   string    `json:"msg"`
	// Json field needs to match with CustomFieldName
	CustomVal any `json:"SomeKey"`
}

func TestLogger(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})

	// level needs to be set to debug for log all
	handler := rawslog.NewJSONHandler(buffer, &rawslog.HandlerOptions{Level: rawslog.LevelDebug})
	logger := New(handler)

	testMethods := []testMethod{
		{fn: logger.Error, level: rawslog.LevelError},
		{fn: logger.Warn, level: rawslog.LevelWarn},
		{fn: logger.Info, level: rawslog.LevelInfo},
		{fn: logger.Debug, level: rawslog.LevelDebug},
	}

	for _, v := range testMethods {
		t.Run(fmt.Sprintf("testing %s", v.level.String()), func(tAlt *testing.T) {
			checkMethod(v.fn, buffer, v.level.String(), tAlt)
		})
		buffer.Reset()
	}
}

func checkMethod(loggerFunc func(msg string, args ...any), buffer *bytes.Buffer, levelStr string, t *testing.T) {
	loggerFunc(LogText, CustomFieldName, CustomFieldVal)

	line := buffer.Bytes()
	require.NotEmpty(t, line)

	testLogJSONVal := new(testLogJSON)
	err := json.Unmarshal(line, &testLogJSONVal)
	require.NoError(t, err)

	require.Equal(t, levelStr, testLogJSONVal.Level)
	require.Equal(t, LogText, testLogJSONVal.Msg)
	require.Equal(t, CustomFieldVal, testLogJSONVal.CustomVal)
}

func TestZerologBuild(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	templogger, err := NewBuild().FromBuffer(buff).Make()
	require.NoError(t, err)
	require.NotNil(t, templogger)
	// Get Stats Before
	require.Equal(t, buff.Len(), 0)
	templogger.Logger.Info().Msg("Test")
	// Get Stats After
	require.Contains(t, buff.String(), "Test")
	require.NoError(t, templogger.Close())
}

func TestZerologAdapter(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	data, err := NewBuild().FromBuffer(buff).Level("debug").Make()
	require.NoError(t, err)

	l := NewZerolog(data.Logger)
	l.Warn("subscription failed", "key", "users", "error", errors.New("boom"), "dangling")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buff.Bytes(), &line))
	require.Equal(t, "warn", line["level"])
	require.Equal(t, "subscription failed", line["message"])
	require.Equal(t, "users", line["key"])
	require.Equal(t, "boom", line["error"])
	require.Equal(t, "dangling", line["!BADKEY"])
}

func TestZerologLevelFilters(t *testing.T) {
	buff := bytes.NewBuffer([]byte{})
	data, err := NewBuild().FromBuffer(buff).Level("error").Make()
	require.NoError(t, err)

	l := NewZerolog(data.Logger)
	l.Debug("hidden")
	l.Info("hidden")
	require.Zero(t, buff.Len())

	l.Error("shown")
	require.Contains(t, buff.String(), "shown")
}

func TestOrNop(t *testing.T) {
	require.Equal(t, Nop, OrNop(nil))
	d := Discard()
	require.Equal(t, Logger(d), OrNop(d))
}
