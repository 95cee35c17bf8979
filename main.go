//
// Date: 2026-02-15
// Copyright (c) 2026. All rights reserved.
//

package main

import (
	"github.com/cloudmanic/optionflow/cmd"
)

// main is the entry point for the optionflow pipeline. It delegates all
// command parsing and execution to the cobra command framework.
func main() {
	cmd.Execute()
}
