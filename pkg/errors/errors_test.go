package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_Nil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))
	assert.NoError(t, Mark(nil, ErrTransport, "ctx"))
}

func TestMark_KeepsKindAndCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: i/o timeout")
	err := Mark(cause, ErrTransport, "fetch pokemon/1")

	assert.True(t, Is(err, ErrTransport))
	assert.True(t, Is(err, cause))
	assert.False(t, Is(err, ErrNotFoundRemotely))
	assert.Equal(t, "fetch pokemon/1: transport error: dial tcp: i/o timeout", err.Error())
}

func TestWrap_PreservesKind(t *testing.T) {
	err := Wrap(Mark(New("disk full"), ErrPersistence, "upsert"), "store")
	assert.True(t, Is(err, ErrPersistence))
}
