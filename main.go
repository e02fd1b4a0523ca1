package main

import "github.com/qkv-io/qKV/cmd"

func main() {
	cmd.Execute()
}
