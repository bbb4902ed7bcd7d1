package app

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{name: "no args defaults to serve", args: nil, want: CommandServe},
		{name: "empty first arg defaults to serve", args: []string{""}, want: CommandServe},
		{name: "serve", args: []string{"serve"}, want: CommandServe},
		{name: "snapshot worker", args: []string{"worker"}, want: CommandWorker},
		{name: "migrate", args: []string{"migrate"}, want: CommandMigrate},
		{name: "docker healthcheck", args: []string{"healthcheck"}, want: CommandHealthcheck},
		{name: "extra args ignored", args: []string{"worker", "--interval", "1h"}, want: CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%q) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%q) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	for _, arg := range []string{"wroker", "Serve", "snapshot"} {
		cmd, err := ParseCommand([]string{arg})
		if !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("ParseCommand([%s]) error = %v, want ErrUnknownCommand", arg, err)
		}
		if cmd != "" {
			t.Errorf("ParseCommand([%s]) = %q, want empty", arg, cmd)
		}
	}
}

func TestCommand_RequiresDatabase(t *testing.T) {
	tests := []struct {
		cmd  Command
		want bool
	}{
		{CommandServe, false},
		{CommandWorker, true},
		{CommandMigrate, true},
		{CommandHealthcheck, false},
	}

	for _, tt := range tests {
		if got := tt.cmd.RequiresDatabase(); got != tt.want {
			t.Errorf("%s.RequiresDatabase() = %v, want %v", tt.cmd, got, tt.want)
		}
	}
}
