package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/phenbot/study-engine/internal/account"
	"github.com/phenbot/study-engine/internal/domain"
)

func TestResolveUser(t *testing.T) {
	assert.Equal(t, "", resolveUser("  "))
	assert.Equal(t, "u-123", resolveUser(" u-123 "))
	assert.Equal(t, account.UserID("ada@example.com"), resolveUser("ada@example.com"))
}

func TestPrintAnswer(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUI(&buf, false)

	printAnswer(ui, &domain.AnswerRecord{
		Answer:        "The unit of life.",
		Source:        domain.SourceAIWithPDF,
		Confidence:    85,
		AccuracyScore: 80,
		BloomLevel:    domain.BloomRemember,
		Subject:       "biology",
		PDFSources:    []domain.DocumentRef{{Name: "cells.pdf", ID: "d1"}},
	})

	out := buf.String()
	assert.Contains(t, out, "The unit of life.")
	assert.Contains(t, out, "cells.pdf")
	assert.Contains(t, out, "biology")
}

func TestPrintAnswer_Unavailable(t *testing.T) {
	var buf bytes.Buffer
	printAnswer(NewUI(&buf, false), &domain.AnswerRecord{Answer: "no answer", Source: domain.SourceError})
	assert.Contains(t, buf.String(), "no answer")
}

func TestUI_JSONModeIsSilent(t *testing.T) {
	var buf bytes.Buffer
	ui := NewUI(&buf, true)
	ui.Success("ok")
	ui.Section("x")
	ui.KeyValue("k", "v")
	assert.Nil(t, ui.ProgressBar("f", 10))
	assert.Empty(t, buf.String())
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "75.0%", formatPercent(0.75))
}
