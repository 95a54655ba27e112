package main

import (
	"context"
	"fmt"
	"os"

	"atlas/internal/cli"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	if err := cli.New(context.Background(), os.Stdout).Run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "atlas:", err)
		os.Exit(1)
	}
}
