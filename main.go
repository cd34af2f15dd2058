package main

import (
	"github.com/openecg/ecgmon/cmd"
	"github.com/openecg/ecgmon/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
