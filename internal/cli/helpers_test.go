package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validTriggersCUE = `
package triggers

trigger: "order-fulfilment": {
	correlation: "parallel"
	conditions: [
		{filters: [{attributes: {type: "order.created"}, correlate: {order_id: "subject"}}]},
		{filters: [{attributes: {type: "payment.received"}, correlate: {order_id: "data.order_id"}}]},
	]
	run: {workflow: "fulfil", version: "1.0.0"}
}
`

const orderEvents = `{"id":"e1","type":"order.created","source":"shop","subject":"42"}
{"id":"e2","type":"order.created","source":"shop","subject":"43"}

{"id":"e3","type":"payment.received","source":"billing","data":{"order_id":"42"}}
`

// writeFile creates dir/name with content and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeTriggersDir creates a triggers directory holding one CUE file.
func writeTriggersDir(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "triggers")
	writeFile(t, dir, "triggers.cue", content)
	return dir
}
