package main

import (
	"os"

	"github.com/odyssey-erp/expenseflow/cmd/expensectl/cli"
)

func main() {
	if err := cli.NewRootCommand(nil).Execute(); err != nil {
		os.Exit(1)
	}
}
