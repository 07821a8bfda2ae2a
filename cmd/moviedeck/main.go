// Command moviedeck はTMDBカタログのクエリキャッシュとお気に入りを提供するAPIサーバー。
//
//	moviedeck [serve]              APIサーバーを起動する
//	moviedeck worker               期限切れセッションを定期削除する
//	moviedeck migrate [up|down N|version]
//	moviedeck healthcheck          /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/moviedeck/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "moviedeck: %v\n", err)
		os.Exit(1)
	}
}
