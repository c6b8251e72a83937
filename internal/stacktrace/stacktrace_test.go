package stacktrace

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleStack = `goroutine 1 [running]:
main.crash(0x2)
	/app/cmd/demo/main.go:24 +0x65
github.com/example/app/internal/checkout.(*Cart).Total()
	/app/internal/checkout/cart.go:102 +0x1b
main.main()
	/app/cmd/demo/main.go:11 +0x20
`

func TestParse_SampleStack(t *testing.T) {
	frames := Parse(sampleStack)

	assert.Len(t, frames, 3)

	assert.Equal(t, "/app/cmd/demo/main.go", frames[0].File)
	assert.Equal(t, 24, frames[0].Line)
	assert.Equal(t, "crash", frames[0].Method)
	assert.Equal(t, "main", frames[0].Class)

	assert.Equal(t, "/app/internal/checkout/cart.go", frames[1].File)
	assert.Equal(t, 102, frames[1].Line)
	assert.Equal(t, "Total", frames[1].Method)
	assert.Equal(t, "github.com/example/app/internal/checkout.(*Cart)", frames[1].Class)
}

func TestParse_RealStack(t *testing.T) {
	frames := Parse(string(debug.Stack()))

	assert.NotEmpty(t, frames)
	for _, frame := range frames {
		assert.NotEmpty(t, frame.File)
		assert.NotEmpty(t, frame.Method)
		assert.Greater(t, frame.Line, 0)
	}
}

func TestParse_GarbageInput(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("not a stack trace at all"))
	assert.Empty(t, Parse("goroutine 7 [running]:\n"))
}
