package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCode(t *testing.T) {
	err := New(ErrInvalidZTS)
	assert.True(t, IsCode(err, ErrInvalidZTS))
	assert.False(t, IsCode(err, ErrUnrecognizedAPI))
	assert.False(t, IsCode(stderrors.New("plain"), ErrInvalidZTS))
	assert.False(t, IsCode(nil, ErrInvalidZTS))
}

func TestIsCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("checking module: %w", New(ErrUnrecognizedAPI))
	assert.True(t, IsCode(err, ErrUnrecognizedAPI))
	assert.Equal(t, uint32(ErrUnrecognizedAPI), Code(err))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		code uint32
		want string
	}{
		{ErrOpen, "Unable to open the DLL."},
		{ErrUnrecognizedDLL, "Unrecognized DLL."},
		{ErrUnrecognizedAPI, "Unrecognized ZEND_MODULE_API_NO"},
		{ErrInvalidZTS, "Invalid value of zts"},
		{ErrUnrecognizedArch, "Unrecognized architecture."},
		{99, "99"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, New(tt.code).Error())
		assert.Equal(t, tt.want, Message(tt.code))
	}
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("access denied")
	err := Wrap(ErrOpen, cause)

	assert.True(t, IsCode(err, ErrOpen))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Unable to open the DLL.: access denied", err.Error())
	assert.Equal(t, uint32(Err0), Code(cause))
}
