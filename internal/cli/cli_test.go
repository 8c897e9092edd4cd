package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(out io.Writer) (*CommandSet, *string) {
	var ran string
	set := NewCommandSet("restd", out)
	cmd := set.AddCommand("Serve", "Runs the server")
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Usage("serve [FLAGS]").Does(func(ctx context.Context, flags *flag.FlagSet, out io.Writer) error {
		addr, _ := flags.GetString("addr")
		ran = addr
		if len(flags.Args()) > 0 {
			return Usagef("unexpected argument '%s'", flags.Args()[0])
		}
		return nil
	})
	set.AddCommand("token", "Issues a token")
	return set, &ran
}

func TestCommandSet_Exec(t *testing.T) {
	ctx := context.Background()
	t.Run("Runs command", func(t *testing.T) {
		var out strings.Builder
		set, ran := testSet(&out)
		require.NoError(t, set.Exec(ctx, []string{"SERVE", "--addr", ":9000"}))
		assert.Equal(t, ":9000", *ran)
		assert.Empty(t, out.String())
	})
	t.Run("Help", func(t *testing.T) {
		var out strings.Builder
		set, ran := testSet(&out)
		require.NoError(t, set.Exec(ctx, []string{"serve", "-h"}))
		assert.Empty(t, *ran)
		assert.Contains(t, out.String(), "restd serve [FLAGS]")
		assert.Contains(t, out.String(), "--addr")
	})
	t.Run("Top level help", func(t *testing.T) {
		var out strings.Builder
		set, _ := testSet(&out)
		require.NoError(t, set.Exec(ctx, []string{"--help"}))
		assert.Contains(t, out.String(), "serve\tRuns the server")
		assert.Contains(t, out.String(), "token\tIssues a token")
	})
	t.Run("Unknown command", func(t *testing.T) {
		set, _ := testSet(io.Discard)
		assert.ErrorIs(t, set.Exec(ctx, []string{"nope"}), ErrUnknownCommand)
		assert.ErrorIs(t, set.Exec(ctx, nil), ErrUnknownCommand)
	})
	t.Run("Bad flag", func(t *testing.T) {
		set, _ := testSet(io.Discard)
		var usageErr *UsageError
		assert.ErrorAs(t, set.Exec(ctx, []string{"serve", "--port", "1"}), &usageErr)
	})
	t.Run("Usage error from command", func(t *testing.T) {
		var out strings.Builder
		set, _ := testSet(&out)
		err := set.Exec(ctx, []string{"serve", "extra"})
		var usageErr *UsageError
		require.True(t, errors.As(err, &usageErr))
		assert.ErrorContains(t, err, "unexpected argument 'extra'")
		assert.Contains(t, out.String(), "USAGE:")
	})
	t.Run("Command without action prints usage", func(t *testing.T) {
		var out strings.Builder
		set, _ := testSet(&out)
		require.NoError(t, set.Exec(ctx, []string{"token"}))
		assert.Contains(t, out.String(), "Issues a token")
	})
}
