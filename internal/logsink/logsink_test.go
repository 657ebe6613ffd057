package logsink

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"edge-bridge/internal/stats"
)

func TestLogrusSaveWritesFields(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	sink := NewLogrus(base)
	sink.Save(context.Background(), stats.Snapshot{Resource: "tenders", Saved: 3})

	assert.Contains(t, buf.String(), `"resource":"tenders"`)
	assert.Contains(t, buf.String(), `"saved":3`)
}

func TestAsyncDoesNotBlock(t *testing.T) {
	done := make(chan struct{})
	sink := asyncTestSink{done: done}

	Async(context.Background(), sink, stats.Snapshot{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async sink never ran")
	}
}

type asyncTestSink struct {
	done chan struct{}
}

func (s asyncTestSink) Save(context.Context, stats.Snapshot) {
	close(s.done)
}
