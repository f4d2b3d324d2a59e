// Command signhook signs identity provider webhook payloads with the same
// construction the server verifies, and optionally delivers them.
package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var cli struct {
	Sign     SignCmd     `cmd:"" help:"Print the signature header for a payload file."`
	Accepted AcceptedCmd `cmd:"" help:"Build, sign and deliver an invitation.accepted event."`
}

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("signhook"),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	cmd.FatalIfErrorf(cmd.Run())
}
