package app

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand は未知のサブコマンドが指定された場合のエラー。
var ErrUnknownCommand = errors.New("unknown command")

// Command はsanadの起動モード。
type Command string

const (
	// CommandServe はCase/Need/ニュースの読み取りAPIを公開する。引数なしの既定。
	CommandServe Command = "serve"
	// CommandWorker は募金進捗のスナップショット記録と古いスナップショットの削除を行う。
	CommandWorker Command = "worker"
	// CommandMigrate はfunding_snapshotsのマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの/healthを叩いて終了する。
	// distrolessイメージのHEALTHCHECK用で、設定の読み込みを行わない。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand は先頭の引数からサブコマンドを決める。
// 引数が空ならserve。未知の名前はエラーにする（ワーカーのつもりでAPIが起動するのを防ぐ）。
// 2番目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}

	switch cmd := Command(args[0]); cmd {
	case CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck:
		return cmd, nil
	default:
		return "", fmt.Errorf("%w: %q (serve, worker, migrate, healthcheck)", ErrUnknownCommand, args[0])
	}
}

// RequiresDatabase はDATABASE_URLが必須のモードかを返す。
// serveはDBが無くても起動し、履歴APIだけが503になる。
func (c Command) RequiresDatabase() bool {
	return c == CommandWorker || c == CommandMigrate
}
