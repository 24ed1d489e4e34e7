package stages

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"janus/internal/job"
)

func TestEjectWarnsWhenDeviceUnknown(t *testing.T) {
	j := job.New("job-1", "batch-1", "A1", "/dev/does-not-exist-janus", "test.img", job.Options{EjectAfterDone: true})

	result := Eject(context.Background(), j, "/dev/does-not-exist-janus", 5*time.Second)

	assert.Equal(t, Success, result.Outcome)
	assert.NotNil(t, j.Snapshot().Warning)
}
