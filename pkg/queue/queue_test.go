package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobDestination(t *testing.T) {
	tests := []struct {
		attempt int
		want    string
	}{
		{attempt: 0, want: QueueExports},
		{attempt: 1, want: QueueExports},
		{attempt: MaxRetries - 1, want: QueueExports},
		{attempt: MaxRetries, want: QueueDLQ},
		{attempt: MaxRetries + 1, want: QueueDLQ},
	}
	for _, tt := range tests {
		job := &Job{ID: "j1", Type: JobTypeExport, Attempt: tt.attempt}
		assert.Equal(t, tt.want, job.Destination(), "attempt %d", tt.attempt)
	}
}
