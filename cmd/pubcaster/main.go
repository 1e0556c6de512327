package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/pubcaster/internal/app"
)

func main() {
	// ログはstderrへ出し、buildサブコマンドのXMLだけをstdoutに流す
	if err := app.Run(os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
