package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"eof", io.EOF, KindEOF},
		{"wrapped eof", fmt.Errorf("read: %w", io.EOF), KindEOF},
		{"plain", stderrors.New("boom"), KindIO},
		{"open", Open("netfs.open", stderrors.New("refused")), KindOpen},
		{"wrapped busy", fmt.Errorf("print: %w", ErrBusy), KindBusy},
		{"unsupported", Unsupported("netfs.rename"), KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	err := IO("netfs.read", io.ErrUnexpectedEOF)

	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrOpen)
	assert.True(t, Is(err, KindIO))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "netfs.open: Open: refused", Open("netfs.open", stderrors.New("refused")).Error())
	assert.Equal(t, "fuji.mount: Unsupported", Unsupported("fuji.mount").Error())
	assert.Equal(t, "Busy", ErrBusy.Error())
	assert.Equal(t, "Unknown(42)", Kind(42).String())
}
