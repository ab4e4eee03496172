package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/memohai/orderbot/internal/channel"
	"github.com/memohai/orderbot/internal/inbound"
	"github.com/memohai/orderbot/internal/reconcile"
	"github.com/memohai/orderbot/internal/server"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[log]
level = "error"

[server]
addr = "127.0.0.1:0"
admin_token = "admin"

[state]
backend = "memory"

[llm]
api_key = "test-key"

[records]
backend = "sqlite"

[records.sqlite]
path = "` + filepath.ToSlash(filepath.Join(dir, "orders.db")) + `"

[telegram]
enabled = false

[whapi]
enabled = true
token = "whapi-token"
poll = false

[kitchen]
recipients = ["slack:C123"]
slack_token = "xoxb-test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGraphBuilds(t *testing.T) {
	for _, key := range []string{"TELEGRAM_BOT_TOKEN", "KITCHEN_STAFF_IDS", "AIRTABLE_API_KEY", "AIRTABLE_BASE_ID"} {
		t.Setenv(key, "")
	}

	var (
		manager   *channel.Manager
		processor *inbound.Processor
		loop      *reconcile.Loop
		srv       *server.Server
	)
	app := fxtest.New(t,
		fx.Supply(ConfigPath(writeConfig(t))),
		InfraModule,
		DomainModule,
		ChannelModule,
		KitchenModule,
		ServerModule,
		fx.Populate(&manager, &processor, &loop, &srv),
	)
	require.NoError(t, app.Err())
	assert.NotNil(t, manager)
	assert.NotNil(t, processor)
	assert.NotNil(t, loop)
	assert.NotNil(t, srv)

	routes := map[string]bool{}
	for _, r := range srv.Echo().Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{"GET /ping", "POST /webhooks/whapi", "GET /api/conversations/:id", "POST /api/orders/:id/paid"} {
		assert.True(t, routes[want], "missing route %s", want)
	}
}
