package repositories

import (
	"testing"
	"time"

	"github.com/automation-platform/execution-core/internal/domain"
	"github.com/automation-platform/execution-core/internal/testutil"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsBadPayloads(t *testing.T) {
	_, err := decodeRule("{not json")
	assert.Error(t, err)

	_, err = decodeRule(`{"max_operations":5,"window":"soon","algorithm":"token_bucket"}`)
	assert.Error(t, err)

	_, err = decodeRule(`{"max_operations":0,"window":"1s","algorithm":"token_bucket"}`)
	assert.Error(t, err)

	_, err = decodeRule(`{"max_operations":5,"window":"1s","algorithm":"adaptive"}`)
	assert.Error(t, err)
}

func TestEncodeProducesReadableWindow(t *testing.T) {
	data, err := encodeRule(domain.RateLimitRule{
		MaxOperations: 5, Window: 1500 * time.Millisecond, Algorithm: domain.LeakyBucket,
	})
	require.NoError(t, err)
	assert.Contains(t, data, `"window":"1.5s"`)
}

func TestProperty_RuleCodecRoundTrip(t *testing.T) {
	params := testutil.DefaultTestParameters()
	props := gopter.NewProperties(params)

	props.Property("decode_inverts_encode", prop.ForAll(
		func(rule domain.RateLimitRule) bool {
			data, err := encodeRule(rule)
			if err != nil {
				return false
			}
			decoded, err := decodeRule(data)
			if err != nil {
				return false
			}
			return decoded == rule
		},
		testutil.GenRateLimitRule(),
	))

	props.TestingRun(t)
}
