package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentpipe/model"
)

// ErrScriptExhausted is returned when a ScriptedModel receives more requests
// than responses were queued.
var ErrScriptExhausted = errors.New("scripted model: no response queued")

type scriptedReply struct {
	resp model.Response
	err  error
}

// ScriptedModel replays queued responses in order and records every request.
// It is safe for concurrent use.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	replies  []scriptedReply
	requests []model.Request
}

// NewScriptedModel creates an empty script.
func NewScriptedModel(name string) *ScriptedModel {
	return &ScriptedModel{name: name}
}

// Reply queues a plain text answer.
func (m *ScriptedModel) Reply(text string) *ScriptedModel {
	return m.Respond(NewResponseBuilder().Text(text).Build())
}

// Respond queues a prepared response.
func (m *ScriptedModel) Respond(resp model.Response) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replies = append(m.replies, scriptedReply{resp: resp})

	return m
}

// Fail queues an error.
func (m *ScriptedModel) Fail(err error) *ScriptedModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replies = append(m.replies, scriptedReply{err: err})

	return m
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]model.Request(nil), m.requests...)
}

// LastPrompt returns the text of the last content of the most recent request.
func (m *ScriptedModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.requests) == 0 {
		return ""
	}

	contents := m.requests[len(m.requests)-1].Contents
	if len(contents) == 0 {
		return ""
	}

	return contents[len(contents)-1].Text()
}

// Remaining reports how many queued replies have not been consumed.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.replies)
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(_ context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)

	var next scriptedReply
	if len(m.replies) == 0 {
		next.err = ErrScriptExhausted
	} else {
		next = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if next.err != nil {
		errCh <- next.err
	} else {
		respCh <- next.resp
	}

	close(respCh)
	close(errCh)

	return respCh, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}
