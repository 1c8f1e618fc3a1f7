package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	p := New(nil, "tracker")
	_, err := p.Publish(context.Background(), "run.completed", map[string]string{"k": "v"})
	assert.Error(t, err)
	p.Stop()
}

func TestPublishNilReceiver(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "run.completed", "payload")
	assert.Error(t, err)
}
