package keystone_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/keystone"
	"github.com/aretw0/keystone/pkg/adapters/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_FullWalkthrough(t *testing.T) {
	store := memory.NewStore()
	engine, err := keystone.New(store)
	require.NoError(t, err)
	defer engine.Close()

	lines := []string{
		"",               // welcome
		"",               // why consider selling
		"1",              // motivation: Retirement
		"",               // business snapshot
		"2",              // revenue: $1M-$5M
		"2",              // employees: 10-50
		"",               // buyer types
		"s",              // buyer preference skipped
		"",               // readiness
		"2",              // preparation: No
		"2",              // timeline: 6-12 months
		"owner",          // invalid email
		"owner@firm.com", // valid email
	}
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var out bytes.Buffer

	runner := keystone.NewRunner(in, &out)
	require.NoError(t, runner.Run(context.Background(), engine))

	output := out.String()
	assert.Contains(t, output, "Contractor Planning Institute")
	assert.Contains(t, output, "Your report is ready!")
	assert.Contains(t, output, "Please enter a valid email address.")
	assert.Contains(t, output, "$2M - $10M")
	assert.Equal(t, 1, store.Len())
	assert.Zero(t, engine.Sessions().Len(), "session ended with the run")
}

func TestRunner_QuitAndEOF(t *testing.T) {
	engine, err := keystone.New(memory.NewStore())
	require.NoError(t, err)

	var out bytes.Buffer
	err = keystone.NewRunner(strings.NewReader("\nquit\n"), &out).Run(context.Background(), engine)
	assert.ErrorIs(t, err, keystone.ErrQuit)
	assert.Contains(t, out.String(), "Bye!")

	err = keystone.NewRunner(strings.NewReader(""), &out).Run(context.Background(), engine)
	assert.ErrorIs(t, err, keystone.ErrQuit)
}

func TestRunner_RequiresIO(t *testing.T) {
	engine, err := keystone.New(memory.NewStore())
	require.NoError(t, err)

	assert.Error(t, (&keystone.Runner{}).Run(context.Background(), engine))
}

func TestFormatView_Question(t *testing.T) {
	engine, err := keystone.New(memory.NewStore())
	require.NoError(t, err)
	defer engine.Close()

	sess, err := engine.StartSession(context.Background())
	require.NoError(t, err)
	sess.Advance()
	sess.Advance()
	sess.Answer("motivation", "Retirement")

	md := keystone.FormatView(sess.View(), 0)
	assert.Contains(t, md, "## What's your primary reason for considering a sale?")
	assert.Contains(t, md, "1. [x] Retirement")
	assert.Contains(t, md, "2. [ ] Growth opportunities")
	assert.Contains(t, md, "_Step 3 of 10")
}
