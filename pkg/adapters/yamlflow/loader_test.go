package yamlflow_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/cadence/pkg/adapters/yamlflow"
	"github.com/aretw0/cadence/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bookingYAML = `
name: book_flight
description: Book a flight
slots:
  - name: origin
    type: text
    prompt: Where are you flying from?
  - name: destination
    type: text
    prompt: Where are you flying to?
steps:
  - id: get_origin
    kind: collect
    slot: origin
  - id: get_destination
    kind: collect
    slot: destination
  - id: confirm_booking
    kind: confirm
    prompt: Book this flight?
  - id: do_booking
    kind: action
    action: create_booking
    output_slot: booking
outputs:
  - booking
`

func writeFlow(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestYAMLLoader(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "booking.yaml", bookingYAML)
	writeFlow(t, dir, "notes.txt", "not a flow")

	loader, err := yamlflow.New(dir)
	require.NoError(t, err)

	names, err := loader.ListFlows()
	require.NoError(t, err)
	assert.Equal(t, []string{"book_flight"}, names)

	def, err := loader.GetFlow("book_flight")
	require.NoError(t, err)
	assert.Equal(t, "Book a flight", def.Description)
	require.Len(t, def.Steps, 4)
	assert.Equal(t, domain.StepCollect, def.Steps[0].Kind)
	assert.Equal(t, "create_booking", def.Steps[3].Action)
	assert.Equal(t, []string{"booking"}, def.Outputs)

	spec, ok := def.Slot("origin")
	require.True(t, ok)
	assert.Equal(t, "Where are you flying from?", spec.Prompt)
}

func TestYAMLLoaderNameFallsBackToFileName(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "greet.yaml", "steps:\n  - id: hi\n    kind: say\n    message: Hello\n")

	loader, err := yamlflow.New(dir)
	require.NoError(t, err)

	def, err := loader.GetFlow("greet")
	require.NoError(t, err)
	assert.Equal(t, "greet", def.Name)
}

func TestYAMLLoaderRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "broken.yaml", "name: broken\nsteps:\n  - id: x\n    kind: collect\n")

	_, err := yamlflow.New(dir)
	assert.Error(t, err, "collect step without slot must fail validation")
}

func TestYAMLLoaderReloadKeepsOldSetOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeFlow(t, dir, "booking.yaml", bookingYAML)

	loader, err := yamlflow.New(dir)
	require.NoError(t, err)

	writeFlow(t, dir, "broken.yaml", "name: broken\nsteps:\n  - kind: say\n")
	assert.Error(t, loader.Reload())

	// The previous definitions are still served.
	names, err := loader.ListFlows()
	require.NoError(t, err)
	assert.Equal(t, []string{"book_flight"}, names)
}
