package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		level   string
		want    zapcore.Level
		wantErr bool
	}{
		{name: "dev default level", mode: "dev", want: zapcore.InfoLevel},
		{name: "empty mode is dev", mode: "", level: "debug", want: zapcore.DebugLevel},
		{name: "prod warn", mode: "prod", level: "WARN", want: zapcore.WarnLevel},
		{name: "unknown mode", mode: "loud", wantErr: true},
		{name: "unknown level", mode: "prod", level: "chatty", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.mode, tt.level)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}
