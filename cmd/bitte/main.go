/*
Copyright © 2025 The Bitte Authors
SPDX-License-Identifier: Apache-2.0
*/
package main

import "github.com/bitte-ops/bitte/pkg/cli"

func main() {
	cli.Execute()
}
