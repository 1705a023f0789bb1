package main

import "github.com/frahmantamala/ops-console/cmd"

func main() {
	cmd.Execute()
}
