package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func bufferLogger(topics map[string]bool) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := &topicHandler{
		inner:  slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		topics: topics,
	}
	return slog.New(h), &buf
}

func TestTopicHandlerFilters(t *testing.T) {
	logger, buf := bufferLogger(map[string]bool{"cpu": true})

	logger.Info("startup")
	logger.With("topic", "cpu").Info("cpu sample")
	logger.With("topic", "backlight").Info("backlight sample")
	logger.With("topic", "backlight").Warn("backlight broken")
	logger.Info("record topic", "topic", "backlight")

	out := buf.String()
	for _, want := range []string{"startup", "cpu sample", "backlight broken"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	for _, unwanted := range []string{"backlight sample", "record topic"} {
		if strings.Contains(out, unwanted) {
			t.Fatalf("output contains filtered %q:\n%s", unwanted, out)
		}
	}
}

func TestTopicHandlerAll(t *testing.T) {
	logger, buf := bufferLogger(map[string]bool{"all": true})

	logger.With("topic", "sleep").Debug("sleep signal")
	if !strings.Contains(buf.String(), "sleep signal") {
		t.Fatalf("all topics did not pass debug record:\n%s", buf.String())
	}
}
