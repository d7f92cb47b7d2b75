package cmd

// Version is the application version. It is intended to be set at build time
// using ldflags, e.g.
// go build -ldflags "-X github.com/custodian-sh/custodian/cmd.Version=1.0.0"
var Version = "0.1.0-dev"
