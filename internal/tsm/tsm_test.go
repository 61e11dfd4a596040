package tsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_consumeProduceAccounting(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := rapid.IntRange(1, 4).Draw(t, "m")
		channels := rapid.IntRange(1, 2).Draw(t, "channels")

		in := make([]float64, channels*BufferSize(m))
		for i := range in {
			in[i] = rapid.Float64Range(-1, 1).Draw(t, "sample")
		}
		out := make([]float64, channels*Block)

		consumed, produced := Process(channels, m, in, out)

		assert.Equal(t, channels*OneTimeConsume(m), consumed)
		assert.Equal(t, channels*Block, produced)
	})
}

func Test_fastPathIsIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		channels := rapid.IntRange(1, 2).Draw(t, "channels")
		in := make([]float64, channels*BufferSize(2))
		for i := range in {
			in[i] = rapid.Float64Range(-1, 1).Draw(t, "sample")
		}
		out := make([]float64, channels*Block)

		Process(channels, 2, in, out)

		assert.Equal(t, in[:channels*Block], out)
	})
}

func Test_doubleSpeedAdvancesByFullFrame(t *testing.T) {
	channels := 1
	in := make([]float64, channels*BufferSize(4))
	out := make([]float64, channels*Block)

	consumed, produced := Process(channels, 4, in, out)

	assert.Equal(t, 1024, consumed)
	assert.Equal(t, 512, produced)
}
