package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicNaming(t *testing.T) {
	assert.Equal(t, "xqc_chat", ChatTopic("xqc"))
	assert.Equal(t, "xqc_processed", ProcessedTopic("xqc"))
}
