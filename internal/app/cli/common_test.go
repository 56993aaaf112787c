package cli

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestUUIDFlag(t *testing.T) {
	valid := uuid.New()

	tests := []struct {
		name    string
		args    []string
		want    uuid.UUID
		wantErr bool
	}{
		{"正しいUUID", []string{"app", "--owner", valid.String()}, valid, false},
		{"前後の空白は無視", []string{"app", "--owner", " " + valid.String() + " "}, valid, false},
		{"未指定", []string{"app"}, uuid.Nil, true},
		{"UUIDではない", []string{"app", "--owner", "alex"}, uuid.Nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				got    uuid.UUID
				gotErr error
			)
			cmd := &cli.Command{
				Name:  "app",
				Flags: []cli.Flag{&cli.StringFlag{Name: "owner"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					got, gotErr = uuidFlag(c, "owner")
					return nil
				},
			}
			require.NoError(t, cmd.Run(context.Background(), tt.args))

			if tt.wantErr {
				assert.Error(t, gotErr)
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short", 10))
	assert.Equal(t, "héll...", preview("héllo world", 4))
}
