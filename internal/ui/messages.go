package ui

import (
	"whisperdesk/internal/jobs"
	"whisperdesk/internal/status"
)

type stateMsg struct {
	S status.State
}

type stateClosedMsg struct{}

type outcomeMsg struct {
	O jobs.Outcome
}

type actionErrMsg struct {
	Err error
}

type savedMsg struct {
	Path string
}

type copiedMsg struct{}
