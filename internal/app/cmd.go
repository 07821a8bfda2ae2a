package app

import (
	"fmt"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションを削除するワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// migrateサブコマンドの操作
const (
	MigrateUp      = "up"
	MigrateDown    = "down"
	MigrateVersion = "version"
)

// MigrateAction はmigrateサブコマンドの操作内容。
type MigrateAction struct {
	Name  string
	Steps int // downで戻すバージョン数
}

// ParseMigrateArgs は「migrate」に続く引数を解析する。
//
//	migrate                 すべて適用
//	migrate up              すべて適用
//	migrate down [steps]    stepsだけ戻す（省略時は1）
//	migrate version         現在のバージョンを表示
func ParseMigrateArgs(args []string) (MigrateAction, error) {
	if len(args) == 0 {
		return MigrateAction{Name: MigrateUp}, nil
	}

	switch args[0] {
	case MigrateUp, MigrateVersion:
		return MigrateAction{Name: args[0]}, nil
	case MigrateDown:
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrateAction{}, fmt.Errorf("invalid rollback steps %q: must be a positive integer", args[1])
			}
			steps = n
		}
		return MigrateAction{Name: MigrateDown, Steps: steps}, nil
	default:
		return MigrateAction{}, fmt.Errorf("unknown migrate action %q (expected up, down or version)", args[0])
	}
}
